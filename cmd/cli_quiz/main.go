package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mbti-story/internal/config"
	"mbti-story/internal/db"
	"mbti-story/internal/domain"
	"mbti-story/internal/llm"
	"mbti-story/internal/repository"
	"mbti-story/internal/scoring"
	"mbti-story/internal/service"
)

// app agrupa los servicios compartidos por los subcomandos.
type app struct {
	sessions *service.SessionService
	chat     *service.ChatService
	results  *service.ResultService
	details  *service.DetailService
	close    func()
}

var (
	sqlitePath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "cli_quiz",
	Short: "Run the MBTI quiz from a terminal",
	Long: `cli_quiz runs the same services as the HTTP API against a local store.

  cli_quiz chat        four-round conversational quiz, then the MBTI result
  cli_quiz detail      the 31-question survey with Big Five scores
  cli_quiz questions   print the survey catalog as JSON`,
	SilenceUsage: true,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Conversational quiz (4 rounds)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		return runChat(cmd.Context(), a, bufio.NewReader(cmd.InOrStdin()), cmd.OutOrStdout())
	},
}

var detailCmd = &cobra.Command{
	Use:   "detail",
	Short: "Detailed survey with Big Five and supplementary scores",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		return runDetail(cmd.Context(), a, bufio.NewReader(cmd.InOrStdin()), cmd.OutOrStdout())
	},
}

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "Print the survey catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(scoring.DefaultCatalog().Questions())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "sqlite", "", "SQLite file to persist sessions and results (default: in memory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log provider calls")
	rootCmd.AddCommand(chatCmd, detailCmd, questionsCmd)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if verbose {
		logger, _ = zap.NewDevelopment()
	}

	var (
		sessRepo   repository.SessionRepository = repository.NewMemorySessionRepository()
		resultRepo repository.ResultRepository  = repository.NewMemoryResultRepository()
		closeFn                                 = func() {}
	)
	path := sqlitePath
	if path == "" {
		path = cfg.SQLitePath
	}
	if path != "" {
		conn, err := db.OpenSQLite(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", path, err)
		}
		sessRepo = repository.NewSQLiteSessionRepository(conn)
		resultRepo = repository.NewSQLiteResultRepository(conn)
		closeFn = func() { _ = conn.Close() }
	}

	chain := llm.NewChain(llm.BuildProviders(llm.ChainConfig{
		PreferredProvider: cfg.WebLLMProvider,
		GeminiAPIKey:      cfg.GeminiAPIKey,
		GeminiModel:       cfg.GeminiModel,
		GeminiBaseURL:     cfg.GeminiBaseURL,
		GroqAPIKey:        cfg.GroqAPIKey,
		GroqModel:         cfg.GroqModel,
		GroqBaseURL:       cfg.GroqBaseURL,
		LocalBaseURL:      cfg.LocalLLMBaseURL,
		LocalModel:        cfg.LLMModel,
		DisableLocal:      cfg.DisableLocalLLM,
	}, logger), logger, nil)

	sessions := service.NewSessionService(sessRepo, logger)
	return &app{
		sessions: sessions,
		chat:     service.NewChatService(sessions, chain, nil, logger),
		results:  service.NewResultService(sessions, resultRepo, chain, nil, logger),
		details:  service.NewDetailService(scoring.DefaultCatalog(), sessions, resultRepo, chain, nil, logger),
		close: func() {
			_ = logger.Sync()
			closeFn()
		},
	}, nil
}

func runChat(ctx context.Context, a *app, reader *bufio.Reader, out io.Writer) error {
	session, err := a.sessions.Create(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "---- Quiz MBTI (escribe 'salir' para terminar) ----")
	fmt.Fprintln(out, "AI > こんにちは。最近あったことを自由に話してください。")

	for {
		fmt.Fprint(out, "Tu > ")
		line, err := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if err != nil && line == "" {
			return nil
		}
		if strings.EqualFold(line, "salir") {
			return nil
		}
		if line == "" {
			continue
		}

		reply, err := a.chat.Post(ctx, session.ID, line)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		for _, m := range reply.Messages {
			fmt.Fprintf(out, "AI > %s\n", m.Content)
		}
		if reply.Done {
			break
		}
	}

	fmt.Fprintln(out, "\nGenerando resultado...")
	res, err := a.results.Get(ctx, session.ID, false)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%s  %s\n%s\n\n", res.Type, res.Title, res.Summary)
	fmt.Fprintf(out, "【特徴】\n%s\n\n【根拠】\n%s\n\n【アドバイス】\n%s\n\n【物語】\n%s\n", res.Features, res.Reasons, res.Advice, res.Story)
	fmt.Fprintf(out, "\nresult_id: %s\n", res.ResultID)
	return nil
}

func runDetail(ctx context.Context, a *app, reader *bufio.Reader, out io.Writer) error {
	questions := a.details.Questions()
	answers := make([]domain.Answer, 0, len(questions))

	fmt.Fprintln(out, "---- Cuestionario detallado (1-5, Enter para omitir) ----")
	for i, q := range questions {
		fmt.Fprintf(out, "\n[%d/%d] %s\n", i+1, len(questions), q.Text)
		if q.Type == domain.QuestionText {
			fmt.Fprint(out, "> ")
			line, _ := reader.ReadString('\n')
			answers = append(answers, domain.Answer{QuestionID: q.ID, Text: strings.TrimSpace(line)})
			continue
		}
		if score, ok := readScore(reader, out); ok {
			answers = append(answers, domain.Answer{QuestionID: q.ID, Score: &score})
		}
	}

	fmt.Fprintln(out, "\nAnalizando respuestas...")
	resp, err := a.details.Diagnose(ctx, "", answers)
	if err != nil {
		return err
	}
	r := resp.Result
	fmt.Fprintf(out, "\nMBTI: %s\n", r.MBTIType)
	fmt.Fprintf(out, "Big Five: O=%d C=%d E=%d A=%d N=%d\n",
		r.BigFive.Openness, r.BigFive.Conscientiousness, r.BigFive.Extraversion, r.BigFive.Agreeableness, r.BigFive.Neuroticism)
	fmt.Fprintf(out, "補助: ストレス耐性=%d 適応力=%d 価値観の柔軟性=%d\n",
		r.Supplements.StressTolerance, r.Supplements.Adaptability, r.Supplements.ValueFlexibility)
	fmt.Fprintf(out, "\n%s\n\n%s\n\n%s\n", r.SummaryText, r.Story, r.Advice)
	fmt.Fprintf(out, "\nresult_id: %s\n", r.ResultID)
	return nil
}

func readScore(reader *bufio.Reader, out io.Writer) (int, bool) {
	for {
		fmt.Fprint(out, "(1-5) > ")
		line, err := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" {
			return 0, false
		}
		if v, convErr := strconv.Atoi(line); convErr == nil && v >= 1 && v <= 5 {
			return v, true
		}
		if err != nil {
			return 0, false
		}
		fmt.Fprintln(out, "Valor invalido.")
	}
}
