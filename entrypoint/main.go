package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"

	"phonorule.dev/machine/api"
	"phonorule.dev/machine/grammar"
	"phonorule.dev/machine/logger"
	"phonorule.dev/machine/rules"
	"phonorule.dev/machine/s3client"
	"phonorule.dev/machine/worker"
)

type Config struct {
	GrammarPath   string `envconfig:"MACHINE_GRAMMAR_PATH" default:""`
	GrammarName   string `envconfig:"MACHINE_GRAMMAR_NAME" default:""`
	Engine        string `envconfig:"MACHINE_ENGINE" default:"matcher"`
	WorkerActive  bool   `envconfig:"MACHINE_WORKER_ACTIVE" default:"true"`
	RestAPIActive bool   `envconfig:"MACHINE_REST_API_ACTIVE" default:"false"`
	RestAPIPort   string `envconfig:"MACHINE_REST_API_PORT" default:"10000"`
}

const workerRestartDelay = 5 * time.Second

func main() {
	logger.SetupLogging()
	log := logger.NewLogger("Main")
	rewriteMode := flag.Bool("rewrite", false, "rewrite the words given as arguments and exit")
	graphRule := flag.String("graph", "", "print the transducer of the named rule as GraphViz and exit")
	flag.Parse()

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		log.Fatal().Err(err).Msg("Failed to read environment")
	}
	engine, err := rules.ParseEngine(config.Engine)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid engine")
	}
	g, err := loadGrammar(config.GrammarPath, config.GrammarName)
	if err != nil {
		log.Fatal().Err(err).Str("path", config.GrammarPath).Msg("Failed to load grammar")
	}
	log.Info().Str("grammar", g.Name).Str("version", g.Version).Int("rules", len(g.Rules)).Msg("Loaded grammar")

	switch {
	case *graphRule != "":
		if err = writeGraph(os.Stdout, g, *graphRule); err != nil {
			log.Fatal().Err(err).Msg("Failed to write graph")
		}
		return
	case *rewriteMode:
		if err = rewrite(os.Stdout, g, engine, flag.Args()); err != nil {
			log.Fatal().Err(err).Msg("Failed to rewrite")
		}
		return
	}

	if config.RestAPIActive {
		rs, err := rules.NewRuleset(g, engine)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to compile rules")
		}
		serve := func() {
			apiRequest := &api.Request{Ruleset: rs}
			host := fmt.Sprintf(":%s", config.RestAPIPort)
			log.Info().Msgf("REST API on %s", host)
			err := http.ListenAndServe(host, apiRequest.Handler())
			log.Fatal().Err(err).Msg("REST API stopped with error")
		}
		if !config.WorkerActive {
			serve()
			return
		}
		go serve()
	}
	if !config.WorkerActive {
		log.Info().Msg("Worker disabled, nothing to do")
		return
	}

	log.Info().Str("engine", string(engine)).Msg("Start rewrite worker")
	for {
		rmqWorker, err := worker.New(g, engine)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not initialize RMQ worker")
		}
		if err = rmqWorker.StartWorker(); err != nil {
			log.Err(err).Msgf("Worker returned with error. Launching new in %s", workerRestartDelay)
			time.Sleep(workerRestartDelay)
		}
	}
}

// loadGrammar reads the grammar at path, which may be a local file, a directory of grammars
// or an "s3://" key. An empty path selects the builtin phonetic grammar. For a directory, name
// picks the grammar; it may be empty when the directory holds exactly one.
func loadGrammar(path, name string) (*grammar.Grammar, error) {
	if path == "" {
		return grammar.Builtin(), nil
	}
	key, ok := s3client.ObjectKey(path)
	if !ok {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return selectGrammar(path, name)
		}
		return grammar.LoadFile(path)
	}
	client, err := s3client.New()
	if err != nil {
		return nil, err
	}
	defer client.Close()
	data, err := client.Download(key)
	if err != nil {
		return nil, err
	}
	return grammar.Load(bytes.NewReader(data))
}

func rewrite(w io.Writer, g *grammar.Grammar, engine rules.Engine, words []string) error {
	rs, err := rules.NewRuleset(g, engine)
	if err != nil {
		return err
	}
	derivations, err := rs.RewriteAll(words)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	for _, d := range derivations {
		if err = enc.Encode(d); err != nil {
			return err
		}
	}
	return nil
}

func writeGraph(w io.Writer, g *grammar.Grammar, name string) error {
	for _, decl := range g.Rules {
		if decl.Name != name {
			continue
		}
		r, err := rules.Compile(g, decl)
		if err != nil {
			return err
		}
		return r.WriteGraph(w)
	}
	return fmt.Errorf("no rule named %q in grammar %s", name, g.Name)
}

func selectGrammar(dir, name string) (*grammar.Grammar, error) {
	grammars, err := grammar.LoadGrammars(dir)
	if err != nil {
		return nil, err
	}
	if name == "" {
		if len(grammars) != 1 {
			return nil, fmt.Errorf("%s holds %d grammars, set MACHINE_GRAMMAR_NAME", dir, len(grammars))
		}
		return grammars[0], nil
	}
	for _, g := range grammars {
		if g.Name == name {
			return g, nil
		}
	}
	return nil, fmt.Errorf("no grammar named %q in %s", name, dir)
}
