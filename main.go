package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/logdna/logdna-go/logger"
	"github.com/sisu-network/lib/log"
	"github.com/sodiumlabs/txsend/account"
	"github.com/sodiumlabs/txsend/chains/eth"
	"github.com/sodiumlabs/txsend/client"
	"github.com/sodiumlabs/txsend/config"
	"github.com/sodiumlabs/txsend/core"
	"github.com/sodiumlabs/txsend/database"
	"github.com/sodiumlabs/txsend/server"
	"golang.org/x/crypto/ssh/terminal"
)

// The reporter is dialed before sending, keep the worst case short.
const (
	reporterDialAttempts = 2
)

// 1000 ETH for the configured key on the dev node.
var devNodeFunding = new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))

func initializeDb(cfg *config.TxSend) (database.Database, error) {
	db := database.NewDb(cfg)
	if err := db.Init(); err != nil {
		return nil, err
	}

	return db, nil
}

func loadAccount(cfg *config.TxSend) (*account.Account, error) {
	if cfg.PrivateKey != "" {
		return account.FromHex(cfg.PrivateKey)
	}

	password := cfg.KeystorePassword
	if _, ok := os.LookupEnv(config.EnvKeystorePassword); !ok {
		fmt.Printf("Passphrase for %s: ", cfg.Keystore)
		bz, err := terminal.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return nil, fmt.Errorf("cannot read passphrase: %w", err)
		}
		password = string(bz)
	}

	return account.FromKeystore(cfg.Keystore, password)
}

func newAccount() error {
	acc, err := account.Generate()
	if err != nil {
		return err
	}

	fmt.Printf("Address: %s\n", acc.Address().Hex())
	fmt.Printf("Private key: %s\n", acc.PrivateKeyHex())
	return nil
}

func runDevNode(cfg *config.TxSend, port int) error {
	alloc := make(map[common.Address]*big.Int)
	if acc, err := loadAccount(cfg); err == nil {
		alloc[acc.Address()] = devNodeFunding
	} else {
		log.Warnf("Dev node starts without funded account, err = %v", err)
	}

	var chainId *big.Int
	if cfg.ChainId > 0 {
		chainId = big.NewInt(cfg.ChainId)
	}
	node := server.NewDevNode(chainId, alloc)

	handler, err := server.NewHandler(node)
	if err != nil {
		return err
	}

	log.Info("Running dev node at port ", port, ", chain id = ", node.ChainId())
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c
		os.Exit(0)
	}()

	return server.NewServer(handler, port).Run()
}

func run(cfg *config.TxSend) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	acc, err := loadAccount(cfg)
	if err != nil {
		return err
	}
	acc.SetNonce(cfg.Nonce)
	log.Info("Sending from ", acc.Address().Hex())

	ethClient, err := eth.NewEthClient(ctx, *cfg)
	if err != nil {
		return err
	}
	defer ethClient.Close()

	var db database.Database
	if cfg.UseDb {
		db, err = initializeDb(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	var reporter client.Client
	if cfg.ReporterUrl != "" {
		reporter = client.NewClient(cfg.ReporterUrl, reporterDialAttempts, cfg.DialRetryInterval.Duration)
		reporter.TryDial()
	}

	nonces := core.NewNonceManager(cfg.NonceMode, cfg.Chain, db, ethClient)
	sender := core.NewSender(cfg, ethClient, acc, nonces, db, reporter, os.Stdout)

	_, err = sender.Run(ctx)
	return err
}

func main() {
	createAccount := flag.Bool("new-account", false, "print a new address and private key, then exit")
	devNodePort := flag.Int("devnode", 0, "run a development node on this port instead of sending")
	flag.Parse()

	if *createAccount {
		if err := newAccount(); err != nil {
			log.Error("Cannot create account, err = ", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(os.Getenv(config.EnvConfigPath))
	if err != nil {
		log.Error("Invalid config, err = ", err)
		os.Exit(1)
	}

	if len(cfg.LogDNA.Secret) > 0 {
		opts := logger.Options{
			App:           cfg.LogDNA.AppName,
			FlushInterval: cfg.LogDNA.FlushInterval.Duration,
			Hostname:      cfg.LogDNA.HostName,
			MaxBufferLen:  cfg.LogDNA.MaxBufferLen,
		}
		logDNA := log.NewDNALogger(cfg.LogDNA.Secret, opts, false)
		log.SetLogger(logDNA)
	}

	if *devNodePort > 0 {
		err = runDevNode(&cfg, *devNodePort)
	} else {
		err = run(&cfg)
	}

	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
