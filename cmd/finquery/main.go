package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"fin-query-agent/internal/app"
	"fin-query-agent/internal/interfaces"
	"fin-query-agent/internal/types"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	configPath := flag.String("config", app.DefaultConfigPath, "path to the YAML config file")
	asJSON := flag.Bool("json", false, "print the full result as JSON")
	summarize := flag.Bool("summarize", false, "write today's audit summary CSV and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [question]\n\nWith no question, questions are read from stdin, one per line.\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	must(app.InitializeSystem())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer app.Shutdown(context.Background())

	cfg, err := app.LoadConfig(ctx, *configPath)
	must(err)

	audit := app.InitializeAudit(ctx, cfg)
	if *summarize {
		app.SummarizeAudit(ctx, audit)
		return
	}

	processor, err := app.InitializePipeline(ctx, cfg, audit)
	must(err)
	creds := app.CredentialsFromEnv()

	if flag.NArg() > 0 {
		res := processor.ProcessQuery(ctx, strings.Join(flag.Args(), " "), creds)
		render(os.Stdout, res, *asJSON)
		app.SummarizeAudit(ctx, audit)
		if !res.OK() {
			os.Exit(1)
		}
		return
	}

	runInteractive(ctx, processor, creds, *asJSON)
	app.SummarizeAudit(ctx, audit)
}

func runInteractive(ctx context.Context, processor interfaces.QueryProcessor, creds types.Credentials, asJSON bool) {
	sc := bufio.NewScanner(os.Stdin)
	prompt := func() { fmt.Fprint(os.Stderr, "question> ") }
	prompt()
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			prompt()
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}
		render(os.Stdout, processor.ProcessQuery(ctx, line, creds), asJSON)
		prompt()
	}
}

func render(w io.Writer, res types.Result, asJSON bool) {
	if asJSON {
		b, _ := json.MarshalIndent(res, "", "  ")
		fmt.Fprintln(w, string(b))
		return
	}
	if !res.OK() {
		fmt.Fprintf(w, "Error (%s): %s\n", res.Failure.Kind, res.Failure.Message)
		return
	}

	a := res.Answer
	section := func(title, body string) {
		fmt.Fprintf(w, "\n%s\n%s\n%s\n", title, strings.Repeat("-", len(title)), body)
	}
	section("Direct Answer", a.DirectAnswer)
	section("Reasoning", a.Reasoning)
	section("Citations", a.Citations)
	section("Confidence", a.Confidence)
	if a.State == types.Malformed {
		fmt.Fprintln(w, "\n(the model reply did not follow the section format; showing it verbatim)")
	}
	fmt.Fprintln(w)
}
