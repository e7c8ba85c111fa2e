// Command shieldpoold drives a full shielded-pool round against an
// in-memory store: deposits up to the anonymity floor, a premature
// withdrawal that must be refused, a valid withdrawal and the double-spend
// attempt that must fail. The proof backend is selected by config.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/kysee/shieldpool/pool"
	"github.com/kysee/shieldpool/proof"
	"github.com/kysee/shieldpool/wallet"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	flag.Parse()

	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load config:", err)
			os.Exit(1)
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("scenario failed")
	}
	log.Info().Msg("scenario complete")
}

func run(cfg *Config, log zerolog.Logger) error {
	var (
		vrf    proof.Verifier
		prover proof.Prover
	)
	switch cfg.Backend {
	case "attest":
		key := proof.NewAttestationKey()
		vrf = proof.NewAttestationVerifier(key)
		prover = proof.NewAttestationProver(key)
	case "plonk":
		log.Info().Int("depth", cfg.Depth).Msg("compiling withdrawal circuit")
		p, v, err := proof.NewPlonkPair(cfg.Depth, proof.WithSolverLogger(log))
		if err != nil {
			return err
		}
		prover, vrf = p, v
	}

	svc := pool.NewService(pool.NewMemStore(), vrf, pool.WithLogger(log))

	operator, err := wallet.New()
	if err != nil {
		return err
	}
	p, err := svc.InitializePool(cfg.PoolID, cfg.MinPoolSize, cfg.Depth, operator.RecipientBytes())
	if err != nil {
		return err
	}
	log.Info().
		Uint64("pool", p.ID).
		Str("operator", operator.Address).
		Hex("root", p.Root[:]).
		Msg("pool ready")

	// fill the pool to one below the floor
	var first *wallet.Wallet
	for i := uint64(0); i+1 < cfg.MinPoolSize; i++ {
		w, err := wallet.New()
		if err != nil {
			return err
		}
		if first == nil {
			first = w
		}
		dep, err := w.BuildDeposit(cfg.Amount, nil)
		if err != nil {
			return err
		}
		index, _, err := w.Submit(svc, cfg.PoolID, dep)
		if err != nil {
			return err
		}
		log.Info().Uint64("index", index).Str("depositor", w.Address).Msg("deposited")
	}

	// below the floor every withdrawal must be refused
	if first != nil {
		err := first.Withdraw(svc, prover, cfg.PoolID, first.Notes(cfg.PoolID)[0].Commitment)
		if !errors.Is(err, pool.ErrInsufficientAnonymitySet) {
			return fmt.Errorf("premature withdrawal: want anonymity-set refusal, got %v", err)
		}
		log.Info().Msg("premature withdrawal refused")
	}

	// the last deposit opens the pool; its owner withdraws
	spender, err := wallet.New()
	if err != nil {
		return err
	}
	dep, err := spender.BuildDeposit(cfg.Amount, []byte("shieldpoold demo"))
	if err != nil {
		return err
	}
	index, root, err := spender.Submit(svc, cfg.PoolID, dep)
	if err != nil {
		return err
	}
	log.Info().Uint64("index", index).Hex("root", root[:]).Msg("pool reached its floor")

	found, err := spender.Scan(svc, cfg.PoolID)
	if err != nil {
		return err
	}
	balance, err := spender.Balance(svc, cfg.PoolID)
	if err != nil {
		return err
	}
	log.Info().Int("notes", found).Str("balance", balance.Dec()).Str("owner", spender.Address).Msg("scanned pool")

	if err := spender.Withdraw(svc, prover, cfg.PoolID, dep.Commitment); err != nil {
		return fmt.Errorf("withdrawal: %w", err)
	}
	log.Info().Msg("withdrawal accepted")

	err = spender.Withdraw(svc, prover, cfg.PoolID, dep.Commitment)
	if !errors.Is(err, pool.ErrAlreadySpent) {
		return fmt.Errorf("double spend: want already-spent refusal, got %v", err)
	}
	log.Info().Msg("double spend refused")

	balance, err = spender.Balance(svc, cfg.PoolID)
	if err != nil {
		return err
	}
	log.Info().Str("balance", balance.Dec()).Msg("final balance")
	return nil
}
