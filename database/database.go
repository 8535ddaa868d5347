package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate"
	migratedb "github.com/golang-migrate/migrate/database"
	"github.com/golang-migrate/migrate/database/mysql"
	"github.com/golang-migrate/migrate/database/sqlite3"
	_ "github.com/golang-migrate/migrate/source/file"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sisu-network/lib/log"
	"github.com/sodiumlabs/txsend/config"
	"github.com/sodiumlabs/txsend/types"
)

// Database persists nonces and the log of sent transactions.
type Database interface {
	Init() error
	Close() error

	GetNonce(chain string, address string) (uint64, bool, error)
	SetNonce(chain string, address string, nonce uint64) error

	SaveSentTx(tx *types.SentTx) error
	GetSentTxs(chain string, address string) ([]*types.SentTx, error)
}

type DefaultDatabase struct {
	cfg *config.TxSend
	db  *sql.DB
}

func NewDb(cfg *config.TxSend) Database {
	return &DefaultDatabase{
		cfg: cfg,
	}
}

func (d *DefaultDatabase) Init() error {
	if err := d.connect(); err != nil {
		log.Error("Failed to connect to db, err = ", err)
		return err
	}

	if err := d.doMigration(); err != nil {
		log.Error("Failed to do migration, err = ", err)
		return err
	}

	return nil
}

func (d *DefaultDatabase) driverName() string {
	if d.cfg.InMemory {
		return "sqlite3"
	}
	return "mysql"
}

func (d *DefaultDatabase) connect() error {
	var dsn string
	if d.cfg.InMemory {
		// Each schema gets its own shared in-memory db so every connection of the pool sees
		// the same tables.
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", d.cfg.DbSchema)
	} else {
		mysqlCfg := mysqldriver.NewConfig()
		mysqlCfg.User = d.cfg.DbUsername
		mysqlCfg.Passwd = d.cfg.DbPassword
		mysqlCfg.Net = "tcp"
		mysqlCfg.Addr = fmt.Sprintf("%s:%d", d.cfg.DbHost, d.cfg.DbPort)
		mysqlCfg.DBName = d.cfg.DbSchema
		mysqlCfg.ParseTime = true
		dsn = mysqlCfg.FormatDSN()
	}

	database, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return err
	}
	if err := database.Ping(); err != nil {
		database.Close()
		return err
	}

	d.db = database
	log.Info("Db is connected successfully, driver = ", d.driverName())
	return nil
}

func (d *DefaultDatabase) doMigration() error {
	var driver migratedb.Driver
	var err error
	if d.cfg.InMemory {
		driver, err = sqlite3.WithInstance(d.db, &sqlite3.Config{})
	} else {
		driver, err = mysql.WithInstance(d.db, &mysql.Config{})
	}
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance(d.cfg.DbMigrationPath, d.driverName(), driver)
	if err != nil {
		return err
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

func (d *DefaultDatabase) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DefaultDatabase) GetNonce(chain string, address string) (uint64, bool, error) {
	row := d.db.QueryRow("SELECT nonce FROM nonces WHERE chain = ? AND address = ?",
		chain, strings.ToLower(address))

	var nonce int64
	err := row.Scan(&nonce)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	return uint64(nonce), true, nil
}

func (d *DefaultDatabase) SetNonce(chain string, address string, nonce uint64) error {
	_, err := d.db.Exec("REPLACE INTO nonces (chain, address, nonce) VALUES (?, ?, ?)",
		chain, strings.ToLower(address), int64(nonce))
	if err != nil {
		log.Errorf("Failed to save nonce %d for %s on chain %s, err = %v", nonce, address, chain, err)
	}

	return err
}

func (d *DefaultDatabase) SaveSentTx(tx *types.SentTx) error {
	_, err := d.db.Exec("INSERT INTO sent_txs (hash, chain, from_address, to_address, nonce, raw) VALUES (?, ?, ?, ?, ?, ?)",
		tx.Hash, tx.Chain, strings.ToLower(tx.From), strings.ToLower(tx.To), int64(tx.Nonce), tx.Raw)
	if err != nil {
		log.Error("Failed to save sent tx ", tx.Hash, " err = ", err)
	}

	return err
}

func (d *DefaultDatabase) GetSentTxs(chain string, address string) ([]*types.SentTx, error) {
	rows, err := d.db.Query("SELECT hash, chain, from_address, to_address, nonce, raw FROM sent_txs WHERE chain = ? AND from_address = ? ORDER BY nonce",
		chain, strings.ToLower(address))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]*types.SentTx, 0)
	for rows.Next() {
		tx := &types.SentTx{}
		var nonce int64
		if err := rows.Scan(&tx.Hash, &tx.Chain, &tx.From, &tx.To, &nonce, &tx.Raw); err != nil {
			return nil, err
		}
		tx.Nonce = uint64(nonce)
		txs = append(txs, tx)
	}

	return txs, rows.Err()
}
