package main

import (
	"errors"
	"path/filepath"
)

type Config struct {
	InputPath  string
	OutputDir  string
	TokenLimit int
	Pretty     bool
	Overwrite  bool
}

func (c Config) Validate() error {
	if c.InputPath == "" {
		return errors.New("missing -in")
	}
	if c.OutputDir == "" {
		return errors.New("missing -out")
	}
	if c.TokenLimit <= 0 {
		return errors.New("token limit must be > 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InputPath:  "",
		OutputDir:  filepath.FromSlash("out/batches"),
		TokenLimit: 12_000,
	}
}
