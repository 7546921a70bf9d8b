package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"os"
)

type Config struct {
	AppName        string `json:"app_name"`
	ListenIP       string `json:"listen_ip"`
	ListenPort     int    `json:"listen_port"`
	SessionKey     string `json:"session_key"`
	StoreBackend   string `json:"store_backend"` // "mongo" or "sqlite"
	MongoURI       string `json:"mongo_uri"`
	MongoDatabase  string `json:"mongo_database"`
	SQLitePath     string `json:"sqlite_path"`
	CaptchaEnabled bool   `json:"captcha_enabled"`
}

func Load(path string) (Config, error) {
	var cfg Config

	file, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return cfg, err
	}

	// Environment variables win over file values
	if v := os.Getenv("SAFEHAVEN_SESSION_KEY"); v != "" {
		cfg.SessionKey = v
	}
	if v := os.Getenv("SAFEHAVEN_STORE_BACKEND"); v != "" {
		cfg.StoreBackend = v
	}
	if v := os.Getenv("SAFEHAVEN_MONGO_URI"); v != "" {
		cfg.MongoURI = v
	}
	if v := os.Getenv("SAFEHAVEN_MONGO_DATABASE"); v != "" {
		cfg.MongoDatabase = v
	}
	if v := os.Getenv("SAFEHAVEN_SQLITE_PATH"); v != "" {
		cfg.SQLitePath = v
	}

	if cfg.StoreBackend == "" {
		cfg.StoreBackend = "mongo"
	}
	if cfg.MongoURI == "" {
		cfg.MongoURI = "mongodb://localhost:27017"
	}
	if cfg.MongoDatabase == "" {
		cfg.MongoDatabase = "safehaven"
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = "./safehaven.db"
	}

	// If no key is provided or it's the placeholder, generate a secure random one
	if cfg.SessionKey == "" || cfg.SessionKey == "CHANGE_ME_IN_PRODUCTION" {
		log.Println("WARNING: No session key configured. Generating a random key. Sessions will be invalidated on restart.")
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err != nil {
			return cfg, err
		}
		cfg.SessionKey = hex.EncodeToString(randomKey)
	}

	return cfg, nil
}
