package main

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/evvm-org/p2pswap/internal/signer"
)

type (
	signerFunc func() *signer.Signer
	outFunc    func(*cobra.Command) io.Writer
	orderFunc  func(s *signer.Signer, nonce *uint256.Int, tokenA, tokenB common.Address, orderID uint64) (signer.Signed, error)
)

// pairFlags are shared by every order-book action.
type pairFlags struct {
	nonce  string
	tokenA string
	tokenB string
}

func (p *pairFlags) register(c *cobra.Command) {
	flags := c.Flags()
	flags.StringVar(&p.nonce, "nonce", "", "async nonce (decimal)")
	flags.StringVar(&p.tokenA, "token-a", "", "asset offered")
	flags.StringVar(&p.tokenB, "token-b", "", "asset asked")
	c.MarkFlagRequired("nonce")
	c.MarkFlagRequired("token-a")
	c.MarkFlagRequired("token-b")
}

func (p *pairFlags) parse() (*uint256.Int, common.Address, common.Address, error) {
	nonce, err := parseAmount("nonce", p.nonce)
	if err != nil {
		return nil, common.Address{}, common.Address{}, err
	}
	tokenA, err := parseAddress("token-a", p.tokenA)
	if err != nil {
		return nil, common.Address{}, common.Address{}, err
	}
	tokenB, err := parseAddress("token-b", p.tokenB)
	if err != nil {
		return nil, common.Address{}, common.Address{}, err
	}
	return nonce, tokenA, tokenB, nil
}

func makeOrderCommand(s signerFunc, out outFunc) *cobra.Command {
	var pair pairFlags
	var amountA, amountB string
	c := &cobra.Command{
		Use:   "make-order",
		Short: "Sign a makeOrder message",
		RunE: func(c *cobra.Command, _ []string) error {
			nonce, tokenA, tokenB, err := pair.parse()
			if err != nil {
				return err
			}
			a, err := parseAmount("amount-a", amountA)
			if err != nil {
				return err
			}
			b, err := parseAmount("amount-b", amountB)
			if err != nil {
				return err
			}
			signed, err := s().MakeOrder(nonce, tokenA, tokenB, a, b)
			if err != nil {
				return err
			}
			return printSigned(out(c), signed)
		},
	}
	pair.register(c)
	c.Flags().StringVar(&amountA, "amount-a", "", "amount of token-a escrowed")
	c.Flags().StringVar(&amountB, "amount-b", "", "amount of token-b asked")
	c.MarkFlagRequired("amount-a")
	c.MarkFlagRequired("amount-b")
	return c
}

// orderActionCommand builds a command for an action addressing one order.
func orderActionCommand(use, short string, s signerFunc, out outFunc, sign orderFunc) *cobra.Command {
	var pair pairFlags
	var orderID uint64
	c := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(c *cobra.Command, _ []string) error {
			nonce, tokenA, tokenB, err := pair.parse()
			if err != nil {
				return err
			}
			signed, err := sign(s(), nonce, tokenA, tokenB, orderID)
			if err != nil {
				return err
			}
			return printSigned(out(c), signed)
		},
	}
	pair.register(c)
	c.Flags().Uint64Var(&orderID, "order", 0, "order slot within the market")
	c.MarkFlagRequired("order")
	return c
}

func payCommand(s signerFunc, out outFunc) *cobra.Command {
	var to, asset, amount, priorityFee, nonce, executor string
	var priorityFlag bool
	c := &cobra.Command{
		Use:   "pay",
		Short: "Sign a payment authorization",
		RunE: func(c *cobra.Command, _ []string) error {
			toAddr, err := parseAddress("to", to)
			if err != nil {
				return err
			}
			assetAddr, err := parseAddress("asset", asset)
			if err != nil {
				return err
			}
			execAddr, err := parseAddress("executor", executor)
			if err != nil {
				return err
			}
			amt, err := parseAmount("amount", amount)
			if err != nil {
				return err
			}
			fee, err := parseAmount("priority-fee", priorityFee)
			if err != nil {
				return err
			}
			n, err := parseAmount("nonce", nonce)
			if err != nil {
				return err
			}
			signed, err := s().Pay(toAddr, assetAddr, amt, fee, n, priorityFlag, execAddr)
			if err != nil {
				return err
			}
			return printSigned(out(c), signed)
		},
	}
	flags := c.Flags()
	flags.StringVar(&to, "to", "", "recipient, normally the engine")
	flags.StringVar(&asset, "asset", "", "asset paid")
	flags.StringVar(&amount, "amount", "", "amount paid (decimal)")
	flags.StringVar(&priorityFee, "priority-fee", "0", "priority fee paid to the executor (decimal)")
	flags.StringVar(&nonce, "nonce", "", "payment nonce (decimal)")
	flags.BoolVar(&priorityFlag, "async", true, "use the async nonce space")
	flags.StringVar(&executor, "executor", "", "account allowed to submit the payment")
	for _, name := range []string{"to", "asset", "amount", "nonce", "executor"} {
		c.MarkFlagRequired(name)
	}
	return c
}

func parseAddress(flag, v string) (common.Address, error) {
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("--%s: invalid address %q", flag, v)
	}
	return common.HexToAddress(v), nil
}

func parseAmount(flag, v string) (*uint256.Int, error) {
	n, err := uint256.FromDecimal(v)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", flag, err)
	}
	return n, nil
}
