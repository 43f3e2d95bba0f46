// Command cachectl inspects and cleans the order cache.
//
//	cachectl [-config config.yaml] stats
//	cachectl sweep
//	cachectl clear [category]
//	cachectl invalidate <category> <key>
//	cachectl show <category> <key>
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"seller-market/internal/cache"
	"seller-market/internal/interfaces"
	"seller-market/internal/store"
	"seller-market/internal/types"
)

const usage = `usage: cachectl [-config path] <command>

commands:
  stats                        entry counts per category
  sweep                        remove expired entries
  clear [category]             remove every entry, or one category
  invalidate <category> <key>  remove one entry
  show <category> <key>        print one entry if still valid

categories: token, market_data, buying_power, order_params
keys join their parts with "_", e.g. 4580090306_gs_IRO1MHRN0001`

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := store.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if err := cfg.Cache.RequirePersistent(); err != nil {
		fmt.Fprintln(os.Stderr, "cache:", err)
		os.Exit(1)
	}
	cs, err := cache.New(cfg.Cache)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cache:", err)
		os.Exit(1)
	}

	err = dispatch(context.Background(), cs, os.Stdout, flag.Args())
	cs.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, usage)
		}
		os.Exit(1)
	}
}

var errUsage = errors.New("invalid arguments")

func category(name string) (types.CacheCategory, error) {
	c := types.CacheCategory(name)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", name)
	}
	return c, nil
}

func dispatch(ctx context.Context, cs interfaces.CacheStore, w io.Writer, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "stats":
		s, err := cs.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "backend:  %s\n", s.Backend)
		fmt.Fprintf(w, "total:    %d\n", s.TotalEntries)
		fmt.Fprintf(w, "valid:    %d\n", s.ValidEntries)
		fmt.Fprintf(w, "expired:  %d\n", s.ExpiredEntries)
		for _, c := range types.Categories {
			st := s.PerCategory[c]
			fmt.Fprintf(w, "  %-14s total=%d valid=%d expired=%d ttl=%s\n", c, st.Total, st.Valid, st.Expired, cache.TTL(c))
		}
		return nil

	case "sweep":
		n, err := cs.SweepExpired(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "removed %d expired entries\n", n)
		return nil

	case "clear":
		var (
			n   int
			err error
		)
		switch len(args) {
		case 1:
			n, err = cs.ClearAll(ctx)
		case 2:
			c, cerr := category(args[1])
			if cerr != nil {
				return cerr
			}
			n, err = cs.Clear(ctx, c)
		default:
			return errUsage
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "removed %d entries\n", n)
		return nil

	case "invalidate", "show":
		if len(args) != 3 {
			return errUsage
		}
		c, err := category(args[1])
		if err != nil {
			return err
		}
		if args[0] == "invalidate" {
			if err := cs.Invalidate(ctx, c, args[2]); err != nil {
				return err
			}
			fmt.Fprintf(w, "invalidated %s/%s\n", c, args[2])
			return nil
		}
		payload, ok := cs.Get(ctx, c, args[2])
		if !ok {
			return fmt.Errorf("%s/%s: not cached or expired", c, args[2])
		}
		if c == types.CategoryToken {
			payload = redactToken(payload)
		}
		var buf bytes.Buffer
		if json.Indent(&buf, payload, "", "  ") != nil {
			buf.Reset()
			buf.Write(payload)
		}
		fmt.Fprintln(w, buf.String())
		return nil
	}
	return errUsage
}

// redactToken hides all but the last characters of a cached bearer token.
func redactToken(payload []byte) []byte {
	var tok types.SessionToken
	if json.Unmarshal(payload, &tok) != nil {
		return payload
	}
	if n := len(tok.Value); n > 6 {
		tok.Value = "..." + tok.Value[n-6:]
	}
	b, err := json.Marshal(tok)
	if err != nil {
		return payload
	}
	return b
}
