package server

import (
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sisu-network/lib/log"
)

// NewHandler registers the dev node apis on a geth rpc server.
func NewHandler(node *DevNode) (*rpc.Server, error) {
	handler := rpc.NewServer()
	if err := handler.RegisterName("eth", NewEthApi(node)); err != nil {
		return nil, err
	}
	if err := handler.RegisterName("web3", &Web3Api{}); err != nil {
		return nil, err
	}
	if err := handler.RegisterName("net", &NetApi{node: node}); err != nil {
		return nil, err
	}

	return handler, nil
}

type Server struct {
	handler http.Handler
	port    int
}

func NewServer(handler http.Handler, port int) *Server {
	return &Server{
		handler: handler,
		port:    port,
	}
}

// Run blocks serving http until the listener fails.
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%d", s.port)
	log.Info("Running dev node at ", addr)

	return http.ListenAndServe(addr, s.handler)
}
