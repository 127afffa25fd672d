package engine

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/agentbook/agentbook/internal/chains"
)

// CodeFetcher retrieves the deployed runtime bytecode of an address on a
// chain. Implementations return the empty string (not an error) when the
// address holds no code.
type CodeFetcher interface {
	FetchCode(ctx context.Context, chainKey, address string) (string, error)
}

// RPCCodeFetcher fetches code over JSON-RPC using the chain registry's
// endpoints. Connections are dialed per call; verification volume is far
// too low to warrant pooling.
type RPCCodeFetcher struct {
	registry *chains.Registry
}

func NewRPCCodeFetcher(registry *chains.Registry) *RPCCodeFetcher {
	return &RPCCodeFetcher{registry: registry}
}

func (f *RPCCodeFetcher) FetchCode(ctx context.Context, chainKey, address string) (string, error) {
	chain, err := f.registry.Get(chainKey)
	if err != nil {
		return "", err
	}

	client, err := ethclient.DialContext(ctx, chain.RPCURL)
	if err != nil {
		return "", fmt.Errorf("dialing %s rpc: %w", chainKey, err)
	}
	defer client.Close()

	code, err := client.CodeAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return "", fmt.Errorf("fetching code for %s on %s: %w", address, chainKey, err)
	}
	if len(code) == 0 {
		return "", nil
	}
	return "0x" + common.Bytes2Hex(code), nil
}
