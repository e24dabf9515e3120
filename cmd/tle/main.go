package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/thibmeu/tlock-go/pkg/client"
	"github.com/thibmeu/tlock-go/pkg/tlockage"
)

func main() {
	app := &cli.App{
		Name:  "tle",
		Usage: "timelock encryption against a drand network",
		Description: `Encrypts data so it can only be decrypted once a future drand round
signature is published, and decrypts it once the network has reached
that round. Data is carried in the age file format with a tlock stanza.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "network",
				Aliases: []string{"n"},
				Value:   "https://api.drand.sh",
				Usage:   "drand HTTP endpoint",
				EnvVars: []string{"TLE_NETWORK"},
			},
			&cli.StringFlag{
				Name:    "chain",
				Aliases: []string{"c"},
				Usage:   "chain hash, 64 hex characters",
				EnvVars: []string{"TLE_CHAIN"},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "enable debug logging",
				EnvVars: []string{"TLE_VERBOSE"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "lock",
				Usage: "encrypt towards a future round",
				Flags: []cli.Flag{
					&cli.Uint64Flag{
						Name:    "round",
						Aliases: []string{"r"},
						Usage:   "round number to lock to",
					},
					&cli.DurationFlag{
						Name:    "duration",
						Aliases: []string{"d"},
						Usage:   "how far in the future to lock, used when no round is given",
					},
					&cli.BoolFlag{
						Name:    "armor",
						Aliases: []string{"a"},
						Usage:   "write an ASCII armored file",
					},
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "input file, defaults to stdin"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output file, defaults to stdout"},
				},
				Action: lock,
			},
			{
				Name:  "unlock",
				Usage: "decrypt once the round signature is available",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "armor",
						Aliases: []string{"a"},
						Usage:   "read an ASCII armored file",
					},
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "input file, defaults to stdin"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output file, defaults to stdout"},
				},
				Action: unlock,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("tle: %v", err)
	}
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if c.Bool("verbose") {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

func newBeaconClient(c *cli.Context, logger *zap.Logger) (*client.Client, error) {
	chainHash, err := hex.DecodeString(c.String("chain"))
	if err != nil {
		return nil, fmt.Errorf("decode chain hash: %w", err)
	}
	return client.NewClient(&client.Config{
		URL:       c.String("network"),
		ChainHash: chainHash,
		Logger:    logger,
	})
}

func lock(c *cli.Context) error {
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	beacon, err := newBeaconClient(c, logger)
	if err != nil {
		return err
	}

	info, err := beacon.Info(c.Context)
	if err != nil {
		return err
	}

	round := c.Uint64("round")
	if round == 0 {
		d := c.Duration("duration")
		if d <= 0 {
			return fmt.Errorf("either --round or --duration is required")
		}
		round = info.RoundAfter(time.Now().Add(d))
	}
	logger.Sugar().Infow("Locking data", "round", round, "chain", fmt.Sprintf("%x", info.Hash))

	src, dst, closeAll, err := openFiles(c)
	if err != nil {
		return err
	}
	defer closeAll()

	out := dst
	if c.Bool("armor") {
		armored := tlockage.NewArmorWriter(dst)
		defer func() { _ = armored.Close() }()
		out = armored
	}

	return tlockage.Encrypt(out, src, info.Hash, info.PublicKey, round)
}

func unlock(c *cli.Context) error {
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	inputPath := c.String("input")
	if inputPath == "" {
		return fmt.Errorf("unlock requires --input: the header is read before the body")
	}

	header, err := readHeader(inputPath, c.Bool("armor"))
	if err != nil {
		return err
	}
	logger.Sugar().Infow("Read tlock header", "round", header.Round, "chain", fmt.Sprintf("%x", header.Hash))

	beacon, err := client.NewClient(&client.Config{
		URL:       c.String("network"),
		ChainHash: header.Hash,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	b, err := beacon.Get(c.Context, header.Round)
	if err != nil {
		return err
	}

	src, dst, closeAll, err := openFiles(c)
	if err != nil {
		return err
	}
	defer closeAll()

	in := io.Reader(src)
	if c.Bool("armor") {
		in = tlockage.NewArmorReader(src)
	}

	return tlockage.Decrypt(dst, in, header.Hash, b.Signature)
}

func readHeader(path string, armored bool) (*tlockage.Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}
	defer func() { _ = f.Close() }()

	src := io.Reader(f)
	if armored {
		src = tlockage.NewArmorReader(f)
	}
	return tlockage.DecryptHeader(src)
}

func openFiles(c *cli.Context) (io.Reader, io.Writer, func(), error) {
	src := io.Reader(os.Stdin)
	dst := io.Writer(os.Stdout)
	closers := []io.Closer{}

	if path := c.String("input"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open input file: %w", err)
		}
		src = f
		closers = append(closers, f)
	}
	if path := c.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			for _, cl := range closers {
				_ = cl.Close()
			}
			return nil, nil, nil, fmt.Errorf("create output file: %w", err)
		}
		dst = f
		closers = append(closers, f)
	}

	return src, dst, func() {
		for _, cl := range closers {
			_ = cl.Close()
		}
	}, nil
}
