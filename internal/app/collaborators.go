package app

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/clients"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/config"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/dispatcher"
	"github.com/PrinceCharming0115/cctp-evm-bridge/internal/simulated"
)

// onChain is the set of collaborators selected by dispatcher.mode
type onChain struct {
	custodian         common.Address
	burnToken         common.Address
	messenger         dispatcher.Messenger
	metadataMessenger dispatcher.MetadataMessenger
	asset             dispatcher.BurnAsset
	assets            dispatcher.AssetResolver
	factory           messengerFactory

	// evm only
	chain  *clients.Chain
	client *ethclient.Client

	// simulated only
	tokens simulated.Assets
}

// messengerFactory satisfies handlers.MessengerFactory
type messengerFactory struct {
	messenger         func(common.Address) (dispatcher.Messenger, error)
	metadataMessenger func(common.Address) (dispatcher.MetadataMessenger, error)
}

func (f messengerFactory) Messenger(address common.Address) (dispatcher.Messenger, error) {
	return f.messenger(address)
}

func (f messengerFactory) MetadataMessenger(address common.Address) (dispatcher.MetadataMessenger, error) {
	return f.metadataMessenger(address)
}

func nonZero(address common.Address) error {
	if address == (common.Address{}) {
		return fmt.Errorf("%w: messenger", dispatcher.ErrZeroAddress)
	}
	return nil
}

func newEVMCollaborators(ctx context.Context, cfg config.ChainConfig) (*onChain, error) {
	opts := clients.ChainOptions{
		GasLimit:       cfg.GasLimit,
		ReceiptTimeout: time.Duration(cfg.ReceiptTimeout) * time.Second,
	}
	if cfg.ChainID > 0 {
		opts.ChainID = new(big.Int).SetUint64(cfg.ChainID)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	chain, client, err := clients.DialChain(dialCtx, cfg.RPCEndpoints, cfg.PrivateKey, opts)
	if err != nil {
		return nil, fmt.Errorf("connect chain: %w", err)
	}

	burnToken := common.HexToAddress(cfg.BurnToken)
	return &onChain{
		custodian:         chain.From(),
		burnToken:         burnToken,
		messenger:         clients.NewTokenMessenger(chain, common.HexToAddress(cfg.TokenMessenger)),
		metadataMessenger: clients.NewMetadataMessenger(chain, common.HexToAddress(cfg.TokenMessengerWithMetadata)),
		asset:             clients.NewERC20(chain, burnToken),
		assets:            clients.ERC20Assets{Chain: chain},
		factory: messengerFactory{
			messenger: func(a common.Address) (dispatcher.Messenger, error) {
				if err := nonZero(a); err != nil {
					return nil, err
				}
				return clients.NewTokenMessenger(chain, a), nil
			},
			metadataMessenger: func(a common.Address) (dispatcher.MetadataMessenger, error) {
				if err := nonZero(a); err != nil {
					return nil, err
				}
				return clients.NewMetadataMessenger(chain, a), nil
			},
		},
		chain:  chain,
		client: client,
	}, nil
}

// Simulated messengers live at addresses derived from the custodian, the way
// contracts deployed by it would.
func newSimulatedCollaborators(cfg config.SimulatedConfig, dcfg config.DispatcherConfig, logger *logrus.Logger) (*onChain, error) {
	custodian := common.HexToAddress(cfg.Custodian)
	burnToken := common.HexToAddress(cfg.BurnToken)

	tokens := simulated.Assets{}
	usdc := simulated.NewToken(burnToken, "USD Coin", cfg.ChainID)
	tokens[burnToken] = usdc
	for _, t := range dcfg.FastTransferTokens {
		addr := common.HexToAddress(t)
		if _, ok := tokens[addr]; !ok {
			tokens[addr] = simulated.NewToken(addr, "Fast "+addr.Hex()[:8], cfg.ChainID)
		}
	}

	all := make([]*simulated.Token, 0, len(tokens))
	for _, t := range tokens {
		all = append(all, t)
	}

	for who, amount := range cfg.Balances {
		v, ok := config.ParseAmount(amount)
		if !ok {
			return nil, fmt.Errorf("simulated.balances[%s]: invalid amount", who)
		}
		for _, t := range all {
			t.Mint(common.HexToAddress(who), v)
		}
		logrus.Debugf("Minted %s of every simulated token to %s", v, who)
	}

	forwardingDomain := dcfg.ForwardingDomain
	newMessenger := func(a common.Address) (dispatcher.Messenger, error) {
		if err := nonZero(a); err != nil {
			return nil, err
		}
		return simulated.NewMessenger(a, custodian, all...), nil
	}
	newMetadataMessenger := func(a common.Address) (dispatcher.MetadataMessenger, error) {
		if err := nonZero(a); err != nil {
			return nil, err
		}
		return simulated.NewMetadataMessenger(a, custodian, forwardingDomain, all...), nil
	}

	messenger, _ := newMessenger(crypto.CreateAddress(custodian, 0))
	metadataMessenger, _ := newMetadataMessenger(crypto.CreateAddress(custodian, 1))
	logger.WithFields(logrus.Fields{
		"custodian":          custodian.Hex(),
		"burn_token":         burnToken.Hex(),
		"messenger":          messenger.Address().Hex(),
		"metadata_messenger": metadataMessenger.Address().Hex(),
	}).Info("🧪 Simulated collaborators ready")

	return &onChain{
		custodian:         custodian,
		burnToken:         burnToken,
		messenger:         messenger,
		metadataMessenger: metadataMessenger,
		asset:             usdc,
		assets:            tokens,
		factory:           messengerFactory{messenger: newMessenger, metadataMessenger: newMetadataMessenger},
		tokens:            tokens,
	}, nil
}
