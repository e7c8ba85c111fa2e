// Command genverifier compiles the withdrawal circuit at a chosen tree
// depth and writes the plonk verifying key's Solidity verifier, for hosts
// that check withdrawals on an EVM chain.
package main

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/kysee/shieldpool/proof"
)

func main() {
	depth := flag.Int("depth", 4, "tree depth the circuit is compiled for")
	outDir := flag.String("out", "contracts", "output directory")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	_, _, vk, err := proof.CompileWithdrawCircuit(*depth)
	if err != nil {
		log.Fatal().Err(err).Int("depth", *depth).Msg("compile circuit")
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatal().Err(err).Msg("create output directory")
	}

	var buf bytes.Buffer
	if err := vk.ExportSolidity(&buf); err != nil {
		log.Fatal().Err(err).Msg("export verifier")
	}

	path := filepath.Join(*outDir, "WithdrawVerifier.sol")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		log.Fatal().Err(err).Msg("write verifier")
	}
	log.Info().Str("path", path).Int("depth", *depth).Msg("solidity verifier generated")
}
