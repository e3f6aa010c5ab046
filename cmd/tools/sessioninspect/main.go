package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/mindful/backend/internal/analysis/crisis"
	"github.com/zhouzirui/mindful/backend/internal/config"
	"github.com/zhouzirui/mindful/backend/internal/model/session"
	sessionService "github.com/zhouzirui/mindful/backend/internal/service/session"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	dir := flag.String("dir", cfg.Storage.SessionsDir, "会话文件目录，默认使用 SESSIONS_DIR")
	id := flag.String("id", "", "查看单个会话的完整对话与评估")
	asJSON := flag.Bool("json", false, "输出原始 JSON")
	timeout := flag.Duration("timeout", 10*time.Second, "读取超时时间")

	flag.Parse()

	store, err := sessionService.NewStore(*dir)
	if err != nil {
		log.Fatalf("打开会话目录失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *id != "" {
		err = inspectSession(ctx, os.Stdout, store, strings.TrimSpace(*id), *asJSON)
	} else {
		err = listSessions(ctx, os.Stdout, store, *asJSON)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func inspectSession(ctx context.Context, out io.Writer, store *sessionService.Store, id string, asJSON bool) error {
	record, err := store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sessionService.ErrSessionNotFound) {
			return fmt.Errorf("会话不存在: %s", id)
		}
		return fmt.Errorf("读取会话失败: %w", err)
	}

	if asJSON {
		return writeJSON(out, record)
	}

	fmt.Fprintf(out, "Session:  %s\n", record.ID)
	fmt.Fprintf(out, "Created:  %s\n", record.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Updated:  %s\n", record.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Messages: %d\n\n", len(record.Messages))

	if len(record.Messages) > 0 {
		fmt.Fprintln(out, record.Transcript())
		fmt.Fprintln(out)
	}

	printEvaluation(out, record.Evaluation)

	if signal := crisis.ScreenMessages(record.Messages); signal.Flagged() {
		fmt.Fprintf(out, "\nCrisis screen: %s (%s)\n", signal.Level, strings.Join(signal.Matches, ", "))
	}
	return nil
}

func printEvaluation(out io.Writer, evaluation *session.Evaluation) {
	if evaluation == nil {
		fmt.Fprintln(out, "Evaluation: none")
		return
	}

	fmt.Fprintf(out, "Evaluation (%s)\n", evaluation.EvaluatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "  wellness score:  %d\n", evaluation.WellnessScore)
	fmt.Fprintf(out, "  emotional state: %s\n", evaluation.EmotionalState)
	fmt.Fprintf(out, "  risk level:      %s\n", evaluation.RiskLevel)
	if evaluation.Summary != "" {
		fmt.Fprintf(out, "  summary:         %s\n", evaluation.Summary)
	}
	for _, concern := range evaluation.Concerns {
		fmt.Fprintf(out, "  concern:         %s\n", concern)
	}
	for _, rec := range evaluation.Recommendations {
		fmt.Fprintf(out, "  recommendation:  %s\n", rec)
	}
}

func listSessions(ctx context.Context, out io.Writer, store *sessionService.Store, asJSON bool) error {
	records, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("列出会话失败: %w", err)
	}

	summaries := make([]session.Summary, 0, len(records))
	for _, record := range records {
		summaries = append(summaries, record.Summary())
	}

	if asJSON {
		return writeJSON(out, summaries)
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMESSAGES\tSCORE\tRISK\tUPDATED")
	for _, summary := range summaries {
		score, risk := "-", "-"
		if summary.Evaluation != nil {
			score = fmt.Sprintf("%d", summary.Evaluation.WellnessScore)
			risk = string(summary.Evaluation.RiskLevel)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", summary.ID, summary.MessageCount, score, risk, summary.UpdatedAt.Format(time.RFC3339))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%d sessions in %s\n", len(summaries), store.Root())
	return nil
}

func writeJSON(out io.Writer, payload any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}
