package signer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"orderbook-lister/internal/orderbook"
)

const domainType = "EIP712Domain"

var errAmbiguousPrimary = errors.New("signer: 无法推断 primaryType")

// typedDataHash 计算 EIP-712 摘要 keccak256("\x19\x01" ‖ domainSeparator ‖ hashStruct(message))。
func typedDataHash(msg orderbook.TypedMessage) ([]byte, error) {
	data, err := buildTypedData(msg)
	if err != nil {
		return nil, &orderbook.SigningError{Err: err}
	}
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, &orderbook.SigningError{Err: fmt.Errorf("计算 EIP-712 摘要失败: %w", err)}
	}
	return hash, nil
}

type rawDomain struct {
	Name              *string         `json:"name"`
	Version           *string         `json:"version"`
	ChainID           json.RawMessage `json:"chainId"`
	VerifyingContract *string         `json:"verifyingContract"`
	Salt              *string         `json:"salt"`
}

func buildTypedData(msg orderbook.TypedMessage) (apitypes.TypedData, error) {
	var data apitypes.TypedData

	if err := json.Unmarshal(msg.Types, &data.Types); err != nil {
		return data, fmt.Errorf("解析 types 失败: %w", err)
	}
	if err := json.Unmarshal(msg.Value, &data.Message); err != nil {
		return data, fmt.Errorf("解析 message 失败: %w", err)
	}

	var domain rawDomain
	if err := json.Unmarshal(msg.Domain, &domain); err != nil {
		return data, fmt.Errorf("解析 domain 失败: %w", err)
	}
	fields := make([]apitypes.Type, 0, 5)
	if domain.Name != nil {
		data.Domain.Name = *domain.Name
		fields = append(fields, apitypes.Type{Name: "name", Type: "string"})
	}
	if domain.Version != nil {
		data.Domain.Version = *domain.Version
		fields = append(fields, apitypes.Type{Name: "version", Type: "string"})
	}
	if len(domain.ChainID) > 0 && string(domain.ChainID) != "null" {
		chainID, err := parseChainID(domain.ChainID)
		if err != nil {
			return data, err
		}
		data.Domain.ChainId = (*math.HexOrDecimal256)(chainID)
		fields = append(fields, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if domain.VerifyingContract != nil {
		data.Domain.VerifyingContract = *domain.VerifyingContract
		fields = append(fields, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	if domain.Salt != nil {
		data.Domain.Salt = *domain.Salt
		fields = append(fields, apitypes.Type{Name: "salt", Type: "bytes32"})
	}

	if data.Types == nil {
		data.Types = apitypes.Types{}
	}
	if _, ok := data.Types[domainType]; !ok {
		data.Types[domainType] = fields
	}

	data.PrimaryType = msg.PrimaryType
	if data.PrimaryType == "" {
		primary, err := inferPrimaryType(data.Types)
		if err != nil {
			return data, err
		}
		data.PrimaryType = primary
	}
	if _, ok := data.Types[data.PrimaryType]; !ok {
		return data, fmt.Errorf("types 中缺少 primaryType %q", data.PrimaryType)
	}
	return data, nil
}

func parseChainID(raw json.RawMessage) (*big.Int, error) {
	text := string(raw)
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = unquoted
	}
	chainID, ok := new(big.Int).SetString(strings.TrimSpace(text), 0)
	if !ok {
		return nil, fmt.Errorf("非法 chainId %s", raw)
	}
	return chainID, nil
}

// inferPrimaryType 返回唯一一个未被其他类型引用的结构体类型。
func inferPrimaryType(types apitypes.Types) (string, error) {
	referenced := make(map[string]bool)
	for name, fields := range types {
		if name == domainType {
			continue
		}
		for _, f := range fields {
			referenced[f.Type[:baseLen(f.Type)]] = true
		}
	}

	candidates := make([]string, 0, 1)
	for name := range types {
		if name == domainType || referenced[name] {
			continue
		}
		candidates = append(candidates, name)
	}
	sort.Strings(candidates)

	if len(candidates) != 1 {
		return "", fmt.Errorf("%w: 候选 %v", errAmbiguousPrimary, candidates)
	}
	return candidates[0], nil
}

// baseLen 返回去掉数组后缀 "[]"/"[n]" 后的类型名长度。
func baseLen(typ string) int {
	if i := strings.IndexByte(typ, '['); i >= 0 {
		return i
	}
	return len(typ)
}
