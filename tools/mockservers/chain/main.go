package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/rahataid/rahat-offramp/pkg/chain"
)

// =============================================================================
// Chain RPC Mock Server
// =============================================================================
// This server simulates the Ethereum JSON-RPC methods the offramp uses:
// - eth_chainId
// - eth_sendTransaction (node-unlocked account)
// - eth_getTransactionReceipt
// A transaction is mined MINE_DELAY after it is first seen, including hashes
// that were sent from an external wallet and only ever queried here.
// =============================================================================

type Server struct {
	mu          sync.RWMutex
	chainID     int64
	decimals    int32
	mineDelay   time.Duration
	txs         map[string]*Transaction
	blockNumber uint64
}

type Transaction struct {
	Hash     string    `json:"hash"`
	From     string    `json:"from,omitempty"`
	To       string    `json:"to,omitempty"`
	Data     string    `json:"data,omitempty"`
	Amount   string    `json:"amount,omitempty"`
	SeenAt   time.Time `json:"seen_at"`
	Block    uint64    `json:"block,omitempty"`
	Reverted bool      `json:"reverted"`
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewServer() *Server {
	chainID, err := strconv.ParseInt(getEnv("CHAIN_ID", "84532"), 10, 64)
	if err != nil {
		log.Fatalf("invalid CHAIN_ID: %v", err)
	}
	decimals, err := strconv.ParseInt(getEnv("TOKEN_DECIMALS", "6"), 10, 32)
	if err != nil {
		log.Fatalf("invalid TOKEN_DECIMALS: %v", err)
	}
	delay, err := time.ParseDuration(getEnv("MINE_DELAY", "3s"))
	if err != nil {
		log.Fatalf("invalid MINE_DELAY: %v", err)
	}
	return &Server{
		chainID:     chainID,
		decimals:    int32(decimals),
		mineDelay:   delay,
		txs:         make(map[string]*Transaction),
		blockNumber: 1_000_000,
	}
}

func main() {
	server := NewServer()

	app := fiber.New(fiber.Config{
		AppName: "Chain RPC Mock Server",
	})

	app.Use(logger.New())

	app.Post("/", server.handleRPC)

	// Admin endpoints for testing
	app.Get("/admin/transactions", server.listTransactions)
	app.Post("/admin/revert/:hash", server.revert)
	app.Post("/admin/reset", server.reset)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "service": "chain-rpc-mock"})
	})

	port := getEnv("PORT", "8888")
	log.Printf("Chain RPC Mock Server starting on port %s (chain %d)", port, server.chainID)
	log.Fatal(app.Listen(":" + port))
}

func (s *Server) handleRPC(c *fiber.Ctx) error {
	var req rpcRequest
	if err := c.BodyParser(&req); err != nil {
		return reply(c, nil, nil, &rpcError{Code: -32700, Message: "parse error"})
	}

	switch req.Method {
	case "eth_chainId":
		return reply(c, req.ID, fmt.Sprintf("0x%x", s.chainID), nil)
	case "eth_sendTransaction":
		return s.sendTransaction(c, req)
	case "eth_getTransactionReceipt":
		return s.getReceipt(c, req)
	case "eth_blockNumber":
		s.mu.RLock()
		defer s.mu.RUnlock()
		return reply(c, req.ID, fmt.Sprintf("0x%x", s.blockNumber), nil)
	}
	return reply(c, req.ID, nil, &rpcError{Code: -32601, Message: "method not found: " + req.Method})
}

type sendTxArgs struct {
	From string `json:"from"`
	To   string `json:"to"`
	Data string `json:"data"`
}

func (s *Server) sendTransaction(c *fiber.Ctx, req rpcRequest) error {
	if len(req.Params) != 1 {
		return reply(c, req.ID, nil, &rpcError{Code: -32602, Message: "expected one transaction object"})
	}
	var args sendTxArgs
	if err := json.Unmarshal(req.Params[0], &args); err != nil {
		return reply(c, req.ID, nil, &rpcError{Code: -32602, Message: "invalid transaction object"})
	}
	recipient, units, ok := decodeTransfer(args.Data)
	if !ok {
		return reply(c, req.ID, nil, &rpcError{Code: -32000, Message: "execution reverted: unsupported call"})
	}
	amount := chain.FromBaseUnits(units, s.decimals)

	hash := txHash(args.From, args.To, args.Data, uuid.NewString())
	s.mu.Lock()
	s.txs[hash] = &Transaction{
		Hash:   hash,
		From:   args.From,
		To:     args.To,
		Data:   args.Data,
		Amount: amount.String(),
		SeenAt: time.Now(),
	}
	s.mu.Unlock()

	log.Printf("Transaction %s: %s units of %s from %s to %s", hash, amount, args.To, args.From, recipient)
	return reply(c, req.ID, hash, nil)
}

func (s *Server) getReceipt(c *fiber.Ctx, req rpcRequest) error {
	var hash string
	if len(req.Params) != 1 || json.Unmarshal(req.Params[0], &hash) != nil {
		return reply(c, req.ID, nil, &rpcError{Code: -32602, Message: "expected a transaction hash"})
	}
	hash = strings.ToLower(hash)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[hash]
	if !ok {
		tx = &Transaction{Hash: hash, SeenAt: time.Now()}
		s.txs[hash] = tx
	}
	if time.Since(tx.SeenAt) < s.mineDelay {
		return reply(c, req.ID, nil, nil)
	}
	if tx.Block == 0 {
		s.blockNumber++
		tx.Block = s.blockNumber
	}

	status := "0x1"
	if tx.Reverted {
		status = "0x0"
	}
	return reply(c, req.ID, fiber.Map{
		"transactionHash": tx.Hash,
		"status":          status,
		"blockNumber":     fmt.Sprintf("0x%x", tx.Block),
	}, nil)
}

// =============================================================================
// Admin
// =============================================================================

func (s *Server) listTransactions(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := make([]*Transaction, 0, len(s.txs))
	for _, tx := range s.txs {
		txs = append(txs, tx)
	}
	return c.JSON(fiber.Map{"transactions": txs, "count": len(txs)})
}

func (s *Server) revert(c *fiber.Ctx) error {
	hash := strings.ToLower(c.Params("hash"))

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[hash]
	if !ok {
		tx = &Transaction{Hash: hash, SeenAt: time.Now()}
		s.txs[hash] = tx
	}
	tx.Reverted = true
	return c.JSON(fiber.Map{"status": "reverted", "hash": hash})
}

func (s *Server) reset(c *fiber.Ctx) error {
	s.mu.Lock()
	s.txs = make(map[string]*Transaction)
	s.mu.Unlock()
	return c.JSON(fiber.Map{"status": "reset"})
}

func reply(c *fiber.Ctx, id json.RawMessage, result any, rpcErr *rpcError) error {
	if id == nil {
		id = json.RawMessage("null")
	}
	body := fiber.Map{"jsonrpc": "2.0", "id": id}
	if rpcErr != nil {
		body["error"] = rpcErr
	} else {
		body["result"] = result
	}
	return c.JSON(body)
}

// decodeTransfer unpacks transfer(address,uint256) calldata.
func decodeTransfer(data string) (string, *big.Int, bool) {
	data = strings.ToLower(strings.TrimPrefix(data, "0x"))
	if len(data) != 8+64+64 || data[:8] != "a9059cbb" {
		return "", nil, false
	}
	units, ok := new(big.Int).SetString(data[8+64:], 16)
	if !ok {
		return "", nil, false
	}
	return "0x" + data[8+24:8+64], units, true
}

func txHash(parts ...string) string {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
