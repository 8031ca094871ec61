package chain

import (
    "context"
    "crypto/ecdsa"
    "errors"
    "fmt"
    "math/big"
    "strings"
    "sync"

    "github.com/ethereum/go-ethereum"
    "github.com/ethereum/go-ethereum/accounts/abi"
    "github.com/ethereum/go-ethereum/accounts/abi/bind"
    "github.com/ethereum/go-ethereum/common"
    "github.com/ethereum/go-ethereum/core/types"
    "github.com/ethereum/go-ethereum/crypto"
    "github.com/ethereum/go-ethereum/ethclient"

    "airdrop.bot/internal/money"
)

const tokenABI = `[
    {"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
    {"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"}
]`

// Backend is the subset of an Ethereum JSON-RPC client the token gateway needs.
// *ethclient.Client satisfies it.
type Backend interface {
    bind.DeployBackend
    CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
    BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
    SuggestGasPrice(ctx context.Context) (*big.Int, error)
    PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
    SendTransaction(ctx context.Context, tx *types.Transaction) error
}

type Config struct {
    RPCURL     string
    PrivateKey string
    Token      string
    ChainID    int64
    Decimals   int32
    GasLimit   uint64
}

// BEP20 transfers a BEP20/ERC20 token from a single hot wallet.
type BEP20 struct {
    backend  Backend
    abi      abi.ABI
    token    common.Address
    from     common.Address
    key      *ecdsa.PrivateKey
    chainID  *big.Int
    decimals int32
    gasLimit uint64

    // serializes nonce assignment and broadcast
    sendMu sync.Mutex
}

func Dial(ctx context.Context, cfg Config) (*BEP20, *ethclient.Client, error) {
    client, err := ethclient.DialContext(ctx, cfg.RPCURL)
    if err != nil {
        return nil, nil, fmt.Errorf("dial rpc: %w", err)
    }
    gw, err := NewBEP20(client, cfg)
    if err != nil {
        client.Close()
        return nil, nil, err
    }
    return gw, client, nil
}

func NewBEP20(backend Backend, cfg Config) (*BEP20, error) {
    parsed, err := abi.JSON(strings.NewReader(tokenABI))
    if err != nil {
        return nil, fmt.Errorf("parse token abi: %w", err)
    }
    if !IsValidAddress(cfg.Token) {
        return nil, fmt.Errorf("invalid token contract address %q", cfg.Token)
    }
    key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
    if err != nil {
        return nil, fmt.Errorf("parse private key: %w", err)
    }
    return &BEP20{
        backend:  backend,
        abi:      parsed,
        token:    common.HexToAddress(cfg.Token),
        from:     crypto.PubkeyToAddress(key.PublicKey),
        key:      key,
        chainID:  big.NewInt(cfg.ChainID),
        decimals: cfg.Decimals,
        gasLimit: cfg.GasLimit,
    }, nil
}

// Address is the hot wallet the gateway spends from.
func (g *BEP20) Address() string {
    return g.from.Hex()
}

func (g *BEP20) EnsureFunds(ctx context.Context, amount money.Amount) error {
    balance, err := g.tokenBalance(ctx)
    if err != nil {
        return err
    }
    if balance.Cmp(amount.TokenUnits(g.decimals)) < 0 {
        return ErrInsufficientFunds
    }
    return nil
}

func (g *BEP20) EnsureFee(ctx context.Context) error {
    native, err := g.backend.BalanceAt(ctx, g.from, nil)
    if err != nil {
        return fmt.Errorf("native balance: %w", err)
    }
    gasPrice, err := g.backend.SuggestGasPrice(ctx)
    if err != nil {
        return fmt.Errorf("gas price: %w", err)
    }
    cost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(g.gasLimit))
    if native.Cmp(cost) < 0 {
        return ErrInsufficientFee
    }
    return nil
}

func (g *BEP20) SubmitTransfer(ctx context.Context, to string, amount money.Amount) (string, error) {
    if !IsValidAddress(to) {
        return "", fmt.Errorf("%w: invalid destination %q", ErrSubmissionFailed, to)
    }

    tx, err := g.send(ctx, common.HexToAddress(to), amount.TokenUnits(g.decimals))
    if err != nil {
        return "", classify(err)
    }
    ref := tx.Hash().Hex()

    receipt, err := bind.WaitMined(ctx, g.backend, tx)
    if err != nil {
        return ref, classify(err)
    }
    if receipt.Status != types.ReceiptStatusSuccessful {
        return ref, fmt.Errorf("%w: transaction reverted", ErrSubmissionFailed)
    }
    return ref, nil
}

func (g *BEP20) send(ctx context.Context, to common.Address, units *big.Int) (*types.Transaction, error) {
    data, err := g.abi.Pack("transfer", to, units)
    if err != nil {
        return nil, fmt.Errorf("pack transfer: %w", err)
    }

    g.sendMu.Lock()
    defer g.sendMu.Unlock()

    nonce, err := g.backend.PendingNonceAt(ctx, g.from)
    if err != nil {
        return nil, fmt.Errorf("nonce: %w", err)
    }
    gasPrice, err := g.backend.SuggestGasPrice(ctx)
    if err != nil {
        return nil, fmt.Errorf("gas price: %w", err)
    }

    tx := types.NewTx(&types.LegacyTx{
        Nonce:    nonce,
        GasPrice: gasPrice,
        Gas:      g.gasLimit,
        To:       &g.token,
        Value:    big.NewInt(0),
        Data:     data,
    })
    signed, err := types.SignTx(tx, types.NewEIP155Signer(g.chainID), g.key)
    if err != nil {
        return nil, fmt.Errorf("sign: %w", err)
    }
    if err := g.backend.SendTransaction(ctx, signed); err != nil {
        return nil, fmt.Errorf("broadcast: %w", err)
    }
    return signed, nil
}

func (g *BEP20) tokenBalance(ctx context.Context) (*big.Int, error) {
    data, err := g.abi.Pack("balanceOf", g.from)
    if err != nil {
        return nil, fmt.Errorf("pack balanceOf: %w", err)
    }
    out, err := g.backend.CallContract(ctx, ethereum.CallMsg{To: &g.token, Data: data}, nil)
    if err != nil {
        return nil, fmt.Errorf("call balanceOf: %w", err)
    }
    values, err := g.abi.Unpack("balanceOf", out)
    if err != nil {
        return nil, fmt.Errorf("unpack balanceOf: %w", err)
    }
    if len(values) != 1 {
        return nil, errors.New("unpack balanceOf: unexpected output")
    }
    balance, ok := values[0].(*big.Int)
    if !ok {
        return nil, errors.New("unpack balanceOf: unexpected type")
    }
    return balance, nil
}

func classify(err error) error {
    if errors.Is(err, context.DeadlineExceeded) {
        return fmt.Errorf("%w: %v", ErrTimeout, err)
    }
    return fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
}
