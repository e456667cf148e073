package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"autobot-console/internal/api"
	"autobot-console/internal/model"
)

// DigestJob names the periodic digest in the scheduler.
const DigestJob = "digest"

// DigestAPI is what a digest reads from the autobot API.
type DigestAPI interface {
	ListTasks(ctx context.Context, q api.TaskQuery) (*model.TaskPage, error)
	LogStats(ctx context.Context) (*model.LogStats, error)
	BarkStats(ctx context.Context) (*model.BarkStats, error)
}

// DigestUsers lists the operators to report to and forgets expired sessions.
type DigestUsers interface {
	ListWithSession(ctx context.Context) ([]model.User, error)
	ClearSession(ctx context.Context, telegramID int64) error
}

// Digest is one rendered summary addressed to an operator.
type Digest struct {
	TelegramID int64
	Text       string
}

// DigestService builds periodic summaries for logged-in operators.
type DigestService struct {
	users     DigestUsers
	clientFor func(session string) DigestAPI
	loc       *time.Location
}

func NewDigestService(users DigestUsers, clientFor func(session string) DigestAPI, loc *time.Location) *DigestService {
	if loc == nil {
		loc = time.Local
	}
	return &DigestService{users: users, clientFor: clientFor, loc: loc}
}

// Collect builds a digest for every operator with a session. Operators whose
// session was rejected are skipped and logged out.
func (s *DigestService) Collect(ctx context.Context, now time.Time) ([]Digest, error) {
	users, err := s.users.ListWithSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}

	var digests []Digest
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return digests, err
		}
		text, err := s.Summary(ctx, s.clientFor(user.APISession), now)
		if errors.Is(err, api.ErrUnauthorized) {
			log.Printf("[info] session of %d expired, skipping digest", user.TelegramID)
			if err := s.users.ClearSession(ctx, user.TelegramID); err != nil {
				log.Printf("clear session of %d: %v", user.TelegramID, err)
			}
			continue
		}
		if err != nil {
			log.Printf("build digest for %d: %v", user.TelegramID, err)
			continue
		}
		digests = append(digests, Digest{TelegramID: user.TelegramID, Text: text})
	}
	return digests, nil
}

// Summary renders task counts, log storage and Bark delivery for one session.
func (s *DigestService) Summary(ctx context.Context, client DigestAPI, now time.Time) (string, error) {
	all, err := client.ListTasks(ctx, api.TaskQuery{Limit: 1})
	if err != nil {
		return "", fmt.Errorf("count tasks: %w", err)
	}
	active, err := client.ListTasks(ctx, api.TaskQuery{Limit: 1, Status: model.StatusActive})
	if err != nil {
		return "", fmt.Errorf("count active tasks: %w", err)
	}
	logStats, err := client.LogStats(ctx)
	if err != nil {
		return "", fmt.Errorf("log stats: %w", err)
	}
	barkStats, err := client.BarkStats(ctx)
	if err != nil {
		return "", fmt.Errorf("bark stats: %w", err)
	}
	stats := Stats{Log: *logStats, Bark: *barkStats}

	var b strings.Builder
	b.WriteString("📋 <b>AutoBot 运行摘要</b>\n")
	b.WriteString(fmt.Sprintf("🗓 %s\n\n", now.In(s.loc).Format("2006-01-02 15:04")))
	b.WriteString(fmt.Sprintf("🧩 任务：活跃 %d / 共 %d\n", active.Total, all.Total))
	b.WriteString(fmt.Sprintf("🗂 日志：%d / %d（%d%%）\n", stats.Log.TotalLogs, stats.Log.MaxTotalLogs, stats.LogUsage()))
	b.WriteString(fmt.Sprintf("🔔 Bark：成功 %d · 跳过或失败 %d", stats.Bark.SuccessRecords, stats.BarkSkippedOrFailed()))
	return b.String(), nil
}
