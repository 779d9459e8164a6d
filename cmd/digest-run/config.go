package main

import (
	"errors"
	"path/filepath"
	"time"
)

type Config struct {
	InputPath   string
	OutputPath  string
	DBPath      string
	UserID      string
	Model       string
	APIKey      string
	TokenLimit  int
	BatchSize   int
	Concurrency int
	Pretty      bool
	MinInterval time.Duration
	Force       bool
}

func (c Config) Validate() error {
	if c.InputPath == "" {
		return errors.New("missing -in")
	}
	if c.OutputPath == "" {
		return errors.New("missing -out")
	}
	if c.UserID == "" {
		return errors.New("missing -user")
	}
	if c.Model == "" {
		return errors.New("missing -model")
	}
	if c.TokenLimit <= 0 {
		return errors.New("token limit must be > 0")
	}
	if c.BatchSize <= 0 {
		return errors.New("batch size must be > 0")
	}
	if c.Concurrency <= 0 {
		return errors.New("concurrency must be > 0")
	}
	if c.MinInterval < 0 {
		return errors.New("min interval must be >= 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InputPath:   "",
		OutputPath:  filepath.FromSlash("out/digest.json"),
		Model:       "gpt-5-mini",
		TokenLimit:  12_000,
		BatchSize:   50,
		Concurrency: 4,
		MinInterval: 0,
	}
}
