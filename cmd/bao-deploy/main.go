// bao-deploy drives the bao-factory deployment procedure: address
// prediction, registry status checks, operator management and plan
// deployment, either against a live RPC endpoint or as a local simulation.
package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/baofinance/bao-factory/address"
	"github.com/baofinance/bao-factory/chain"
	"github.com/baofinance/bao-factory/deploy"
	"github.com/baofinance/bao-factory/factory"
	"github.com/baofinance/bao-factory/ledger"
)

const callTimeout = 30 * time.Second

var rootCmd = &cobra.Command{
	Use:           "bao-deploy",
	Short:         "Deterministic deployment tooling for the bao-factory registry",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("rpc-url", "", "EVM RPC endpoint")
	rootCmd.PersistentFlags().Int64("chain-id", 1, "chain id for transaction signing")
	rootCmd.PersistentFlags().String("registry", "", "registry address")
	rootCmd.PersistentFlags().String("gas-fee-cap", "30000000000", "max fee per gas, wei")
	rootCmd.PersistentFlags().String("gas-tip-cap", "1000000000", "max priority fee per gas, wei")

	for _, name := range []string{"rpc-url", "chain-id", "registry", "gas-fee-cap", "gas-tip-cap"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
	viper.SetEnvPrefix("BAO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(predictCmd(), statusCmd(), operatorCmd(), deployCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// dialClient builds the RPC client from the shared configuration. The signing
// key comes from BAO_PRIVATE_KEY only, never from a flag.
func dialClient() (*chain.Client, error) {
	rpcURL := viper.GetString("rpc-url")
	if rpcURL == "" {
		return nil, fmt.Errorf("rpc-url is required (flag or BAO_RPC_URL)")
	}
	registry, err := parseAddress(viper.GetString("registry"))
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	keyHex := strings.TrimPrefix(os.Getenv("BAO_PRIVATE_KEY"), "0x")
	if keyHex == "" {
		return nil, fmt.Errorf("BAO_PRIVATE_KEY is required")
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse BAO_PRIVATE_KEY: %w", err)
	}

	feeCap, ok := new(big.Int).SetString(viper.GetString("gas-fee-cap"), 10)
	if !ok {
		return nil, fmt.Errorf("parse gas-fee-cap %q", viper.GetString("gas-fee-cap"))
	}
	tipCap, ok := new(big.Int).SetString(viper.GetString("gas-tip-cap"), 10)
	if !ok {
		return nil, fmt.Errorf("parse gas-tip-cap %q", viper.GetString("gas-tip-cap"))
	}

	return chain.Dial(rpcURL, viper.GetInt64("chain-id"), registry, key, feeCap, tipCap)
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q is not a hex address", s)
	}
	return common.HexToAddress(s), nil
}

func predictCmd() *cobra.Command {
	var (
		salt         string
		registrySalt string
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict deterministic addresses without touching a chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			if registrySalt != "" {
				reg, logic := factory.PredictRegistry(factory.Config{Salt: []byte(registrySalt)})
				fmt.Printf("registry:        %s\n", reg)
				fmt.Printf("bootstrap logic: %s\n", logic)
				if salt == "" {
					return nil
				}
				fmt.Printf("payload %q: %s\n", salt, factory.Predict(reg, []byte(salt)))
				return nil
			}

			registry, err := parseAddress(viper.GetString("registry"))
			if err != nil {
				return err
			}
			if salt == "" {
				return fmt.Errorf("--salt is required")
			}
			fmt.Printf("payload %q: %s\n", salt, factory.Predict(registry, []byte(salt)))
			return nil
		},
	}

	cmd.Flags().StringVar(&salt, "salt", "", "payload salt")
	cmd.Flags().StringVar(&registrySalt, "registry-salt", "", "predict the registry itself from its bootstrap salt")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report registry existence, logic and operators",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dialClient()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
			defer cancel()

			exists, err := client.RegistryExists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				fmt.Printf("registry %s: not deployed\n", client.Registry())
				return nil
			}

			owner, err := client.Owner(ctx)
			if err != nil {
				return err
			}
			logic, err := client.Logic(ctx)
			if err != nil {
				return err
			}
			ops, err := client.Operators(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("registry: %s\n", client.Registry())
			fmt.Printf("owner:    %s\n", owner)
			fmt.Printf("logic:    %s\n", logic)
			fmt.Printf("operators (%d, expired included):\n", len(ops))
			for _, op := range ops {
				fmt.Printf("  %s expires %s\n", op.Identity, time.Unix(int64(op.Expiry), 0).UTC().Format(time.RFC3339))
			}
			return nil
		},
	}
}

func operatorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operator",
		Short: "Manage operator grants",
	}

	var delay uint64
	set := &cobra.Command{
		Use:   "set <identity>",
		Short: "Grant, renew or (with --delay 0) remove an operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			client, err := dialClient()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
			defer cancel()

			txHash, err := client.SetOperator(ctx, identity, delay)
			if err != nil {
				return err
			}
			fmt.Printf("setOperator tx: %s\n", txHash)
			return nil
		},
	}
	set.Flags().Uint64Var(&delay, "delay", 0, "grant duration in seconds, 0 removes")

	check := &cobra.Command{
		Use:   "check <identity>",
		Short: "Report whether an identity is an active operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			client, err := dialClient()
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
			defer cancel()

			active, err := client.IsCurrentOperator(ctx, identity)
			if err != nil {
				return err
			}
			fmt.Printf("%s active: %v\n", identity, active)
			return nil
		},
	}

	cmd.AddCommand(set, check)
	return cmd
}

func deployCmd() *cobra.Command {
	var (
		planPath string
		owner    string
		simulate bool
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Run a deployment plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := deploy.LoadPlan(planPath)
			if err != nil {
				return err
			}
			prm, err := plan.Resolve(filepath.Dir(planPath))
			if err != nil {
				return err
			}

			if simulate {
				return runSimulation(cmd.Context(), prm, owner)
			}
			return runOnChain(cmd.Context(), prm)
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "plan.yaml", "deployment plan file")
	cmd.Flags().StringVar(&owner, "owner", "", "owner identity for --simulate")
	cmd.Flags().BoolVar(&simulate, "simulate", false, "run the full procedure against an in-memory ledger")
	return cmd
}

// runSimulation executes the whole procedure against the in-memory ledger,
// which is how plans are rehearsed before spending gas.
func runSimulation(ctx context.Context, prm deploy.Prm, ownerHex string) error {
	ownerAddr, err := parseAddress(ownerHex)
	if err != nil {
		return fmt.Errorf("--owner: %w", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // stderr sync failure is uninteresting

	mem := ledger.NewMemory(uint64(time.Now().Unix()))
	for _, p := range prm.Payloads {
		// The rehearsal owner needs enough balance for every value-carrying
		// payload of the plan.
		mem.Fund(ownerAddr, p.Value)
	}
	prm.Logger = logger
	prm.Ledger = mem
	prm.Owner = ownerAddr

	report, err := deploy.Deploy(ctx, prm)
	if err != nil {
		return err
	}

	fmt.Printf("registry: %s\n", report.Registry)
	fmt.Printf("logic:    %s\n", report.Logic)
	for name, addr := range report.Deployed {
		fmt.Printf("payload %-16s %s\n", name, addr)
	}
	return nil
}

// runOnChain sends one deploy transaction per payload not yet present at its
// predicted address, then waits for receipts.
func runOnChain(ctx context.Context, prm deploy.Prm) error {
	client, err := dialClient()
	if err != nil {
		return err
	}
	defer client.Close()

	for _, p := range prm.Payloads {
		saltHash := address.Salt(p.Salt)

		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		predicted, err := client.PredictAddress(callCtx, saltHash)
		cancel()
		if err != nil {
			return fmt.Errorf("predict %q: %w", p.Name, err)
		}

		txHash, err := client.Deploy(ctx, p.Artifact.Code, saltHash, p.Value)
		if err != nil {
			return fmt.Errorf("deploy %q: %w", p.Name, err)
		}

		receipt, err := client.WaitForReceipt(ctx, txHash)
		if err != nil {
			return fmt.Errorf("wait for %q receipt: %w", p.Name, err)
		}
		got, value, err := chain.DeployedFromReceipt(receipt)
		if err != nil {
			return fmt.Errorf("deploy %q: %w", p.Name, err)
		}
		if got != predicted {
			return fmt.Errorf("deploy %q: landed at %s, predicted %s", p.Name, got, predicted)
		}

		fmt.Printf("payload %-16s %s (value %v, tx %s)\n", p.Name, got, value, txHash)
	}
	return nil
}
