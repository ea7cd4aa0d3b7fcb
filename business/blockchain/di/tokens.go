// Package di contains dependency injection tokens for the blockchain context.
package di

import (
	"net/http"

	"github.com/fd1az/poolsync/business/blockchain/app"
	"github.com/fd1az/poolsync/internal/di"
)

// BlockchainService is the only token other modules resolve.
var BlockchainService = di.NewToken[*app.BlockchainService]("blockchain.BlockchainService")

// Module-private tokens. RPCClient is the instrumented transport shared by
// the reader and the subscriber's HTTP fallback.
var (
	RPCClient       = di.NewToken[*http.Client]("blockchain:rpcClient")
	BlockSubscriber = di.NewToken[app.BlockSubscriber]("blockchain:blockSubscriber")
	ChainReader     = di.NewToken[app.ChainReader]("blockchain:chainReader")
)

func GetBlockchainService(c di.ServiceRegistry) *app.BlockchainService {
	return di.GetToken(c, BlockchainService)
}

func GetRPCClient(c di.ServiceRegistry) *http.Client {
	return di.GetToken(c, RPCClient)
}

func GetBlockSubscriber(c di.ServiceRegistry) app.BlockSubscriber {
	return di.GetToken(c, BlockSubscriber)
}

func GetChainReader(c di.ServiceRegistry) app.ChainReader {
	return di.GetToken(c, ChainReader)
}
