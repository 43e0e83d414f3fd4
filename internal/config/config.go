package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress   string
	PipelineURL   string
	AssemblyAIKey string
	DeepgramKey   string
	DeepgramModel string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Error loading .env file")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	pipelineURL := os.Getenv("PIPELINE_URL")
	if pipelineURL == "" {
		pipelineURL = "http://localhost:8000"
	}

	assemblyAIKey := os.Getenv("ASSEMBLYAI_API_KEY")
	if assemblyAIKey == "" {
		log.Println("Warning: ASSEMBLYAI_API_KEY not set - speech capture will not work")
	}

	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	if deepgramKey == "" {
		log.Println("Warning: DEEPGRAM_API_KEY not set - speech synthesis will not work")
	}

	deepgramModel := os.Getenv("DEEPGRAM_TTS_MODEL")
	if deepgramModel == "" {
		deepgramModel = "aura-2-thalia-en"
	}

	log.Printf("config: HTTP_ADDRESS=%s PIPELINE_URL=%s", addr, pipelineURL)
	return Config{
		HTTPAddress:   addr,
		PipelineURL:   pipelineURL,
		AssemblyAIKey: assemblyAIKey,
		DeepgramKey:   deepgramKey,
		DeepgramModel: deepgramModel,
	}
}
