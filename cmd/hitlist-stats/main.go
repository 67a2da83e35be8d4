package main

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/sudorandom/asn-hitlist/pkg/blacklist"
	"github.com/sudorandom/asn-hitlist/pkg/coverage"
	"github.com/sudorandom/asn-hitlist/pkg/hitlist"
	"github.com/sudorandom/asn-hitlist/pkg/report"
	"github.com/sudorandom/asn-hitlist/pkg/sources"
	"github.com/sudorandom/asn-hitlist/pkg/store"
)

type CLI struct {
	Operation string `arg:"" help:"Operation to run: ${operations}."`
	Mapping   string `arg:"" help:"ASN to prefixes mapping, JSON or a MaxMind ASN .mmdb file."`
	AliveIPs  string `arg:"" name:"alive-ips" help:"File with one alive IP address per line."`

	Output      string `short:"o" default:"-" env:"HITLIST_OUTPUT" help:"Where to write the result, '-' for stdout."`
	BlacklistDB string `name:"blacklist-db" env:"HITLIST_BLACKLIST_DB" help:"Prefix store directory. Written by 'blacklist', read by 'targets'."`
	Blacklist   string `help:"Blacklist file from an earlier run, used by 'targets' when no store is given."`
	LogLevel    string `default:"info" env:"HITLIST_LOG_LEVEL" enum:"debug,info,warn,error" help:"Log level (${enum})."`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("Could not load .env file", "err", err)
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("hitlist-stats"),
		kong.Description("Coverage statistics, blacklists and probe targets for announced ASN prefixes."),
		kong.UsageOnError(),
		kong.Vars{"operations": report.OperationList()},
	)

	level, err := log.ParseLevel(cli.LogLevel)
	ctx.FatalIfErrorf(err)
	log.SetLevel(level)

	ctx.FatalIfErrorf(run(&cli))
}

func run(cli *CLI) error {
	op, err := report.ParseOperation(cli.Operation)
	if err != nil {
		return err
	}

	mapping, err := sources.LoadMapping(cli.Mapping)
	if err != nil {
		return err
	}
	ips, err := sources.LoadAliveIPs(cli.AliveIPs)
	if err != nil {
		return err
	}

	resolved := func() *coverage.Engine {
		e := coverage.Build(mapping)
		e.Resolve(ips)
		return e
	}

	var lines []string
	switch op {
	case report.Coverage:
		lines = []string{resolved().Report()}
	case report.DeadASN:
		lines = resolved().DeadASNs()
	case report.AliveASN:
		lines = resolved().AliveASNs()
	case report.DeadNetworks:
		lines = resolved().DeadNetworks()
	case report.AliveNetworks:
		lines = resolved().AliveNetworks()
	case report.Blacklist:
		res := blacklist.Build(mapping).Derive(ips)
		if cli.BlacklistDB != "" {
			if err := saveBlacklist(cli.BlacklistDB, res, filepath.Base(cli.AliveIPs)); err != nil {
				return err
			}
		}
		lines = res.Lines()
	case report.Targets:
		lines, err = targets(cli, resolved())
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %s", report.ErrUnknownOperation, op)
	}

	return report.WriteLines(cli.Output, lines)
}

func saveBlacklist(dir string, res blacklist.Result, source string) error {
	s, err := store.Open(dir)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Warn("Error closing prefix store", "path", dir, "err", err)
		}
	}()
	return s.Replace(res.Prefixes(), []byte(source))
}

func targets(cli *CLI, e *coverage.Engine) ([]string, error) {
	var filter hitlist.Filter
	switch {
	case cli.BlacklistDB != "":
		s, err := store.Open(cli.BlacklistDB)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := s.Close(); err != nil {
				log.Warn("Error closing prefix store", "path", cli.BlacklistDB, "err", err)
			}
		}()
		filter = s
	case cli.Blacklist != "":
		prefixes, err := sources.LoadPrefixList(cli.Blacklist)
		if err != nil {
			return nil, err
		}
		filter = hitlist.NewTrieFilter(prefixes)
	default:
		log.Warn("No blacklist given, only reserved ranges are excluded")
	}

	log.Info("Current coverage", "percent", report.FormatPercent(e.Percent()))
	ts, _, err := hitlist.Targets(e, filter)
	if err != nil {
		return nil, err
	}
	return hitlist.Lines(ts), nil
}
