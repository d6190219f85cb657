package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/yegors/aussie-atis/internal/atis"
	"github.com/yegors/aussie-atis/internal/config"
	"github.com/yegors/aussie-atis/internal/geometry"
	"github.com/yegors/aussie-atis/internal/source"
	"github.com/yegors/aussie-atis/pkg/logger"
)

// output is what the command prints
type output struct {
	Airport     string               `json:"airport,omitempty"`
	State       string               `json:"state"`
	Record      atis.Record          `json:"record"`
	Diagnostics []atis.Diagnostic    `json:"diagnostics,omitempty"`
	Assessment  *geometry.Assessment `json:"assessment,omitempty"`
}

func main() {
	atisFile := flag.String("file", "", "File holding the ATIS text (- reads stdin)")
	metarFile := flag.String("metar", "", "File holding the METAR text")
	tafFile := flag.String("taf", "", "File holding the TAF text")
	airport := flag.String("airport", "", "Fetch and decode the live page for this ICAO code instead of reading files")
	configPath := flag.String("config", "", "Configuration file used with -airport")
	logLevel := flag.String("log-level", "warn", "Log level: debug, info, warn or error")
	flag.Parse()

	log, err := logger.New(logger.Config{Level: *logLevel, Format: "console"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	var out output
	switch {
	case *airport != "":
		out, err = decodeLive(*airport, *configPath, log)
	case *atisFile != "" || *metarFile != "" || *tafFile != "":
		out, err = decodeFiles(*atisFile, *metarFile, *tafFile)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error("Decode failed", logger.Error(err))
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Error("Failed to write output", logger.Error(err))
		os.Exit(1)
	}
}

func decodeFiles(atisPath, metarPath, tafPath string) (output, error) {
	var in atis.Input
	var err error

	if in.ATIS, err = readBlock(atisPath); err != nil {
		return output{}, err
	}
	if in.METAR, err = readBlock(metarPath); err != nil {
		return output{}, err
	}
	if in.TAF, err = readBlock(tafPath); err != nil {
		return output{}, err
	}

	res := atis.Decode(in)
	return output{
		State:       res.Record.State(),
		Record:      res.Record,
		Diagnostics: res.Diagnostics,
	}, nil
}

func decodeLive(code, configPath string, log *logger.Logger) (output, error) {
	cfg, err := config.LoadWithFallback(configPath)
	if err != nil {
		// The built-in defaults are enough to reach the public page
		log.Warn("Using default configuration", logger.Error(err))
		cfg = &config.Config{}
	}
	if err := cfg.Validate(); err != nil {
		return output{}, fmt.Errorf("invalid configuration: %w", err)
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	pos := geometry.Position{}
	if a, ok := cfg.AirportMap()[code]; ok {
		pos = geometry.Position{Latitude: a.Latitude, Longitude: a.Longitude, ElevationFeet: a.ElevationFeet}
	}

	fetcher := source.NewFetcher(source.Config{
		BaseURL:        cfg.Source.BaseURL,
		RequestTimeout: cfg.RequestTimeout(),
		MaxRetries:     cfg.Source.MaxRetries,
		RetryWait:      cfg.RetryWait(),
		UserAgent:      cfg.Source.UserAgent,
	}, log)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	blocks, err := fetcher.Fetch(ctx, code)
	if err != nil {
		return output{}, err
	}

	res := atis.Decode(atis.Input{ATIS: blocks.ATIS, METAR: blocks.METAR, TAF: blocks.TAF})
	return output{
		Airport:     code,
		State:       res.Record.State(),
		Record:      res.Record,
		Diagnostics: res.Diagnostics,
		Assessment:  geometry.Assess(&res.Record, pos, res.Record.DecodedAt),
	}, nil
}

// readBlock returns nil for an empty path
func readBlock(path string) (*string, error) {
	if path == "" {
		return nil, nil
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	text := string(data)
	return &text, nil
}
