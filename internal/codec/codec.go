// Package codec converts vectors to and from their persisted literal form.
//
// リテラルは "[0.10000000,-0.25000000,...]" の形式で、小数点以下8桁の固定精度。
// 往復誤差はEpsilon以下。正規化は行わない。
package codec

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Precision はリテラルに書き出す小数点以下の桁数
const Precision = 8

// Epsilon はEncode→Decodeの往復で許容される成分ごとの最大誤差
const Epsilon = 0.5e-8

// エラー定義
var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrInvalidVector     = errors.New("vector contains NaN or Inf")
	ErrMalformedLiteral  = errors.New("malformed vector literal")
)

// Validate はベクトルの長さとNaN/Infを検証する
func Validate(vec []float64, dim int) error {
	if len(vec) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), dim)
	}
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: component %d is %v", ErrInvalidVector, i, v)
		}
	}
	return nil
}

// Encode はベクトルをリテラル文字列に変換する
// 検証は行わないので、必要ならEncodeCheckedを使う
func Encode(vec []float64) string {
	var b strings.Builder
	b.Grow(len(vec)*12 + 2)
	b.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'f', Precision, 64))
	}
	b.WriteByte(']')
	return b.String()
}

// EncodeChecked は検証後にリテラルへ変換する
func EncodeChecked(vec []float64, dim int) (string, error) {
	if err := Validate(vec, dim); err != nil {
		return "", err
	}
	return Encode(vec), nil
}

// Decode はリテラル文字列をベクトルに変換する
func Decode(lit string) ([]float64, error) {
	s := strings.TrimSpace(lit)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("%w: missing brackets", ErrMalformedLiteral)
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return []float64{}, nil
	}

	parts := strings.Split(body, ",")
	vec := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: component %d: %v", ErrMalformedLiteral, i, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: component %d is %v", ErrInvalidVector, i, v)
		}
		vec[i] = v
	}
	return vec, nil
}

// DecodeDim はDecodeした上で次元を検証する
func DecodeDim(lit string, dim int) ([]float64, error) {
	vec, err := Decode(lit)
	if err != nil {
		return nil, err
	}
	if len(vec) != dim {
		return nil, fmt.Errorf("%w: stored literal has %d components, want %d", ErrDimensionMismatch, len(vec), dim)
	}
	return vec, nil
}
