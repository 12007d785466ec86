package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"mbti-story/internal/config"
	"mbti-story/internal/llm"
	"mbti-story/internal/repository"
	"mbti-story/internal/service"
)

const (
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
	colorReset = "\033[0m"
)

// Scenario es una conversacion de cuatro turnos con el tipo que deberia salir.
type Scenario struct {
	Name         string
	Turns        []string
	ExpectedType string
}

var scenarios = []Scenario{
	{
		Name: "Introvertido idealista",
		Turns: []string{
			"休日は一人で本を読んだり、散歩したりして過ごすのが好きです。",
			"細かい事実よりも、物事の意味や可能性を考えるのが好きです。",
			"決めるときは、自分の気持ちや周りの人の気持ちを大事にします。",
			"予定はあまり決めず、その場の気分で動くことが多いです。",
		},
		ExpectedType: "INFP",
	},
	{
		Name: "Extrovertido organizador",
		Turns: []string{
			"週末は友達を集めてバーベキューを企画するのが楽しみです。",
			"経験したことや具体的なデータを信じるタイプです。",
			"感情より論理で判断して、筋が通っているかを重視します。",
			"計画を立てて、締め切りの前に終わらせるのが好きです。",
		},
		ExpectedType: "ESTJ",
	},
	{
		Name: "Introvertido metodico",
		Turns: []string{
			"人混みは疲れるので、家で静かに過ごすことが多いです。",
			"手順が決まっている作業のほうが安心できます。",
			"客観的に正しいかどうかで判断します。",
			"毎日同じ時間に起きて、予定どおりに進めたいです。",
		},
		ExpectedType: "ISTJ",
	},
}

func main() {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

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

	sessions := service.NewSessionService(repository.NewMemorySessionRepository(), logger)
	chat := service.NewChatService(sessions, chain, nil, logger)
	results := service.NewResultService(sessions, repository.NewMemoryResultRepository(), chain, nil, logger)

	var totalType, totalStory, matched int
	for _, sc := range scenarios {
		fmt.Printf("%s[%s]%s esperado=%s\n", colorCyan, sc.Name, colorReset, sc.ExpectedType)

		res, err := runScenario(ctx, sessions, chat, results, sc)
		if err != nil {
			log.Fatalf("scenario %q failed: %v", sc.Name, err)
		}
		fmt.Printf("%s[%s %s]%s %s\n", colorGreen, res.Type, res.Title, colorReset, res.Summary)
		if res.Type == sc.ExpectedType {
			matched++
		}

		jr, err := evaluateStory(ctx, chain, sc, res.Type, res.Story)
		if err != nil {
			log.Fatalf("judge failed: %v", err)
		}
		fmt.Printf("%sJuez%s %q\n", colorCyan, colorReset, jr.Reasoning)
		fmt.Printf("Scores: Tipo %d/5 | Historia %d/5\n\n", jr.TypeScore, jr.StoryScore)

		totalType += jr.TypeScore
		totalStory += jr.StoryScore
	}

	n := len(scenarios)
	fmt.Println("==== Promedios ====")
	fmt.Printf("Tipo: %.2f/5 | Historia: %.2f/5 | Aciertos: %d/%d\n",
		float64(totalType)/float64(n), float64(totalStory)/float64(n), matched, n)
}

func runScenario(
	ctx context.Context,
	sessions *service.SessionService,
	chat *service.ChatService,
	results *service.ResultService,
	sc Scenario,
) (service.MBTIResponse, error) {
	session, err := sessions.Create(ctx)
	if err != nil {
		return service.MBTIResponse{}, err
	}
	for _, turn := range sc.Turns {
		reply, err := chat.Post(ctx, session.ID, turn)
		if err != nil {
			return service.MBTIResponse{}, err
		}
		if reply.Done {
			break
		}
	}
	return results.Get(ctx, session.ID, false)
}
