// Command signer signs canonical order-book and payment messages with a
// session key decrypted through KMS.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/awnumar/memguard"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/evvm-org/p2pswap/internal/config"
	"github.com/evvm-org/p2pswap/internal/kms"
	"github.com/evvm-org/p2pswap/internal/signer"
)

func main() {
	memguard.CatchInterrupt()
	defer memguard.Purge()

	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "signer: %v\n", err)
		memguard.Purge()
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var s *signer.Signer
	root := &cobra.Command{
		Use:           "signer",
		Short:         "Sign canonical messages for the order-book engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			s, err = openSigner(c.Context(), cfg)
			return err
		},
	}
	out := func(c *cobra.Command) io.Writer { return c.OutOrStdout() }
	root.AddCommand(
		makeOrderCommand(func() *signer.Signer { return s }, out),
		orderActionCommand("cancel-order", "Sign a cancelOrder message", func() *signer.Signer { return s }, out, (*signer.Signer).CancelOrder),
		orderActionCommand("dispatch-order", "Sign a dispatchOrder message", func() *signer.Signer { return s }, out, (*signer.Signer).DispatchOrder),
		payCommand(func() *signer.Signer { return s }, out),
	)
	return root
}

// openSigner activates a session with the configured key. Outside
// development the key file must be a KMS-encrypted blob.
func openSigner(ctx context.Context, cfg *config.Config) (*signer.Signer, error) {
	if cfg.Signer.KeyFile == "" {
		return nil, errors.New("signer.key_file is required")
	}
	session := signer.NewSessionManager(time.Duration(cfg.Signer.SessionTTLSec) * time.Second)

	switch {
	case cfg.Signer.KMSKeyID != "":
		client, err := kms.New(ctx, cfg.Signer.AWSRegion, cfg.Signer.KMSKeyID, cfg.LocalStackEndpoint)
		if err != nil {
			return nil, err
		}
		blob, err := signer.ReadCiphertext(cfg.Signer.KeyFile)
		if err != nil {
			return nil, err
		}
		if err := signer.ActivateEncrypted(ctx, session, client, blob, cfg.Signer.MaxValue); err != nil {
			return nil, err
		}
	case cfg.Env == "development":
		log.WithField("component", "signer").Warn("using plaintext development key")
		raw, err := os.ReadFile(cfg.Signer.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		err = signer.ActivateHex(session, string(raw), cfg.Signer.MaxValue)
		memguard.WipeBytes(raw)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("signer.kms_key_id is required outside development")
	}
	return signer.New(cfg.EVVM.InstanceID, session), nil
}

type output struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
	Signer    string `json:"signer"`
}

func printSigned(w io.Writer, signed signer.Signed) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(output{
		Message:   signed.Message,
		Signature: signed.SignatureHex(),
		Signer:    signed.Signer.Hex(),
	})
}
