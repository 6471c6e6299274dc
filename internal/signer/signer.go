package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"orderbook-lister/internal/config"
	"orderbook-lister/internal/orderbook"
)

// chainClient 为签名器依赖的节点能力，*ethclient.Client 满足该接口。
type chainClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

// Wallet 以本地私钥实现 orderbook.Signer：EIP-712 签名与授权交易广播。
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	client  chainClient
	cfg     config.ChainConfig
	logger  *zap.Logger
}

// New 解析私钥并连接 RPC 节点。
func New(ctx context.Context, cfg config.ChainConfig, logger *zap.Logger) (*Wallet, error) {
	key, err := parseKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("signer: 连接 RPC 节点失败: %w", err)
	}
	return newWallet(cfg, key, client, logger), nil
}

func newWallet(cfg config.ChainConfig, key *ecdsa.PrivateKey, client chainClient, logger *zap.Logger) *Wallet {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConfirmPollInterval <= 0 {
		cfg.ConfirmPollInterval = 2 * time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 3 * time.Minute
	}
	if cfg.GasLimitMultiplier < 1 {
		cfg.GasLimitMultiplier = 1
	}
	address := crypto.PubkeyToAddress(key.PublicKey)
	return &Wallet{
		key:     key,
		address: address,
		chainID: big.NewInt(cfg.ChainID),
		client:  client,
		cfg:     cfg,
		logger:  logger.With(zap.String("address", address.Hex())),
	}
}

func parseKey(raw string) (*ecdsa.PrivateKey, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if raw == "" {
		return nil, errors.New("signer: 私钥为空")
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("signer: 解析私钥失败: %w", err)
	}
	return key, nil
}

// Close 关闭 RPC 连接。
func (w *Wallet) Close() {
	if w.client != nil {
		w.client.Close()
	}
}

// Address 返回钱包地址（EIP-55 校验格式）。
func (w *Wallet) Address(context.Context) (string, error) {
	return w.address.Hex(), nil
}

// SignTypedData 对 EIP-712 结构化数据签名，返回 0x 前缀的 65 字节签名，v 为 27/28。
func (w *Wallet) SignTypedData(_ context.Context, msg orderbook.TypedMessage) (string, error) {
	hash, err := typedDataHash(msg)
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(hash, w.key)
	if err != nil {
		return "", &orderbook.SigningError{Err: err}
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

// SendTransaction 构造、签名并广播交易，返回可等待确认的句柄。
func (w *Wallet) SendTransaction(ctx context.Context, req orderbook.Transaction) (orderbook.PendingTransaction, error) {
	if !common.IsHexAddress(req.To) {
		return nil, fmt.Errorf("signer: 非法目标地址 %q", req.To)
	}
	to := common.HexToAddress(req.To)

	var data []byte
	if req.Data != "" {
		decoded, err := hexutil.Decode(req.Data)
		if err != nil {
			return nil, fmt.Errorf("signer: 解析交易数据失败: %w", err)
		}
		data = decoded
	}

	nonce, err := w.client.PendingNonceAt(ctx, w.address)
	if err != nil {
		return nil, fmt.Errorf("signer: 获取 nonce 失败: %w", err)
	}
	gasPrice, err := w.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("signer: 获取 gas price 失败: %w", err)
	}
	estimated, err := w.client.EstimateGas(ctx, ethereum.CallMsg{From: w.address, To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("signer: 估算 gas 失败: %w", err)
	}
	gasLimit := uint64(float64(estimated) * w.cfg.GasLimitMultiplier)

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.key)
	if err != nil {
		return nil, fmt.Errorf("signer: 交易签名失败: %w", err)
	}
	if err := w.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("signer: 广播交易失败: %w", err)
	}

	w.logger.Info("交易已广播",
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gasLimit),
	)
	return &pendingTx{
		hash:     signed.Hash(),
		client:   w.client,
		interval: w.cfg.ConfirmPollInterval,
		timeout:  w.cfg.ConfirmTimeout,
		logger:   w.logger,
	}, nil
}

// pendingTx 轮询回执直到交易上链或超时。
type pendingTx struct {
	hash     common.Hash
	client   chainClient
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

func (p *pendingTx) Hash() string { return p.hash.Hex() }

func (p *pendingTx) Wait(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		receipt, err := p.client.TransactionReceipt(ctx, p.hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("signer: 交易 %s 执行失败", p.hash.Hex())
			}
			p.logger.Info("交易已确认", zap.String("tx_hash", p.hash.Hex()), zap.Stringer("block", receipt.BlockNumber))
			return nil
		case errors.Is(err, ethereum.NotFound):
		default:
			p.logger.Warn("查询交易回执失败", zap.String("tx_hash", p.hash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("signer: 等待交易 %s 确认超时: %w", p.hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
