package client

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sisu-network/lib/log"
	"github.com/sodiumlabs/txsend/types"
)

const (
	RETRY_TIME  = 10 * time.Second
	RPC_TIMEOUT = 10 * time.Second
)

// A client that reports sent transactions to an upstream JSON-RPC collector.
type Client interface {
	TryDial()
	Ping(source string) error
	PostSentTx(tx *types.SentTx) error
}

var (
	ErrReporterNotConnected = errors.New("reporter is not connected")
)

type DefaultClient struct {
	client     *rpc.Client
	url        string
	connected  bool
	retryTime  time.Duration
	maxAttempt int
}

// NewClient returns a reporter for url. maxAttempt bounds TryDial; 0 means retry forever.
// retryTime is the pause between attempts, RETRY_TIME when 0.
func NewClient(url string, maxAttempt int, retryTime time.Duration) Client {
	if retryTime == 0 {
		retryTime = RETRY_TIME
	}

	return &DefaultClient{
		url:        url,
		retryTime:  retryTime,
		maxAttempt: maxAttempt,
	}
}

func (c *DefaultClient) lastAttempt(attempt int) bool {
	return c.maxAttempt > 0 && attempt >= c.maxAttempt
}

func (c *DefaultClient) TryDial() {
	log.Info("Trying to dial reporter")

	for attempt := 1; c.maxAttempt == 0 || attempt <= c.maxAttempt; attempt++ {
		log.Info("Dialing...", c.url)
		var err error
		c.client, err = rpc.DialContext(context.Background(), c.url)
		if err == nil {
			err = c.Ping("txsend")
		}
		if err != nil {
			log.Error("Cannot reach reporter err = ", err)
			if !c.lastAttempt(attempt) {
				time.Sleep(c.retryTime)
			}
			continue
		}

		c.connected = true
		log.Info("Reporter is connected")
		return
	}

	log.Error("Giving up dialing reporter at ", c.url)
}

func (c *DefaultClient) Ping(source string) error {
	if c.client == nil {
		return ErrReporterNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), RPC_TIMEOUT)
	defer cancel()

	var result string
	return c.client.CallContext(ctx, &result, "txsend_ping", source)
}

func (c *DefaultClient) PostSentTx(tx *types.SentTx) error {
	if !c.connected {
		return ErrReporterNotConnected
	}

	log.Verbose("Posting sent tx to reporter, hash = ", tx.Hash)

	ctx, cancel := context.WithTimeout(context.Background(), RPC_TIMEOUT)
	defer cancel()

	var r string
	err := c.client.CallContext(ctx, &r, "txsend_postSentTx", tx)
	if err != nil {
		log.Error("Cannot post sent tx to reporter, hash = ", tx.Hash, " err = ", err)
		return err
	}

	return nil
}
