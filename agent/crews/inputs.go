package crews

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/BaSui01/crewflow/types"
)

// InputBundle 是一次运行中所有任务共享的不可变输入集合。
// 内部保存规范化 JSON（键有序），Digest 为其 sha256。
type InputBundle struct {
	values map[string]any
	raw    []byte
	digest string
}

// NewInputBundle 从键值构造输入包，值必须可 JSON 编码
func NewInputBundle(values map[string]any) (*InputBundle, error) {
	if values == nil {
		values = map[string]any{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, types.InvalidArgument("input bundle is not JSON-encodable: %v", err)
	}
	return decodeBundle(raw)
}

// MustInputBundle 与 NewInputBundle 相同，失败时 panic
func MustInputBundle(values map[string]any) *InputBundle {
	b, err := NewInputBundle(values)
	if err != nil {
		panic(err)
	}
	return b
}

// DecodeInputBundle 从持久化的规范 JSON 还原输入包，原始字节原样保留。
// digest 非空时校验摘要。
func DecodeInputBundle(raw []byte, digest string) (*InputBundle, error) {
	if digest != "" && Digest(raw) != digest {
		return nil, types.Errorf(types.ErrFailedPrecondition,
			"input bundle digest mismatch: stored %s, computed %s", digest, Digest(raw))
	}
	b, err := decodeBundle(raw)
	if err != nil {
		return nil, types.NewError(types.ErrFailedPrecondition, "stored input bundle is corrupt").WithCause(err)
	}
	return b, nil
}

func decodeBundle(raw []byte) (*InputBundle, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var values map[string]any
	if err := dec.Decode(&values); err != nil {
		return nil, err
	}
	if values == nil {
		return nil, fmt.Errorf("input bundle must be a JSON object")
	}

	owned := append([]byte(nil), raw...)
	return &InputBundle{
		values: values,
		raw:    owned,
		digest: Digest(owned),
	}, nil
}

// Digest 返回字节序列的 sha256 十六进制摘要
func Digest(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Get 返回键对应的值
func (b *InputBundle) Get(key string) (any, bool) {
	v, ok := b.values[key]
	return v, ok
}

// String 返回键对应值的字符串形式，缺失时返回空串
func (b *InputBundle) String(key string) string {
	v, ok := b.values[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// Keys 返回排序后的键
func (b *InputBundle) Keys() []string {
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len 返回键数量
func (b *InputBundle) Len() int { return len(b.values) }

// Canonical 返回规范 JSON 的副本
func (b *InputBundle) Canonical() []byte {
	return append([]byte(nil), b.raw...)
}

// Digest 返回规范 JSON 的 sha256 摘要
func (b *InputBundle) Digest() string { return b.digest }

// Equal 按规范字节比较两个输入包
func (b *InputBundle) Equal(other *InputBundle) bool {
	if b == nil || other == nil {
		return b == other
	}
	return bytes.Equal(b.raw, other.raw)
}
