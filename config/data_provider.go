/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// DataType is a type of data format in which configuration may be described.
type DataType string

// Supported data formats.
const (
	DataTypeYAML DataType = "yaml"
	DataTypeJSON DataType = "json"
)

// DataProvider is an interface for providing configuration data
// from different sources (files, reader, environment variables).
type DataProvider interface {
	UseEnvVars(prefix string)

	Set(key string, value interface{})
	SetDefault(key string, value interface{})

	SetFromFile(path string, dataType DataType) error
	SetFromReader(reader io.Reader, dataType DataType) error

	IsSet(key string) bool

	Get(key string) interface{}
	GetBool(key string) (bool, error)
	GetInt(key string) (int, error)
	GetFloat64(key string) (float64, error)
	GetString(key string) (string, error)
	GetStringFromSet(key string, set []string, ignoreCase bool) (string, error)
	GetStringSlice(key string) ([]string, error)
	GetDuration(key string) (time.Duration, error)
	GetByteSize(key string) (ByteSize, error)

	UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error

	WrapKeyErr(key string, err error) error
}

// A DecoderConfigOption can be passed to UnmarshalKey to configure
// mapstructure.DecoderConfig options.
type DecoderConfigOption func(*mapstructure.DecoderConfig)

// WrapKeyErrIfNeeded wraps error adding information about a key where this error occurs.
// If error is nil, it does nothing.
func WrapKeyErrIfNeeded(key string, err error) error {
	if err == nil {
		return nil
	}
	return WrapKeyErr(key, err)
}

// WrapKeyErr wraps error adding information about a key where this error occurs.
func WrapKeyErr(key string, err error) error {
	return fmt.Errorf("%s: %w", key, err)
}

// ViperProvider is DataProvider implementation that uses viper library under the hood.
type ViperProvider struct {
	viper *viper.Viper
}

var _ DataProvider = (*ViperProvider)(nil)

// NewViperProvider creates a new ViperProvider.
func NewViperProvider() *ViperProvider {
	return &ViperProvider{viper.New()}
}

// UseEnvVars enables the ability to use environment variables for configuration parameters.
// Prefix defines what environment variables will be looked.
// E.g., if your prefix is "webkit", the env registry will look for env
// variables that start with "WEBKIT_".
func (p *ViperProvider) UseEnvVars(prefix string) {
	p.viper.AutomaticEnv()
	p.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	p.viper.SetEnvPrefix(prefix)
}

// Set sets the value for the key in the override register.
func (p *ViperProvider) Set(key string, value interface{}) {
	p.viper.Set(key, value)
}

// SetDefault sets the default value for this key.
// Default only used when no value is provided by the user via config or ENV.
func (p *ViperProvider) SetDefault(key string, value interface{}) {
	p.viper.SetDefault(key, value)
}

// SetFromFile specifies that discovering and loading configuration data will be performed from file.
func (p *ViperProvider) SetFromFile(path string, dataType DataType) error {
	p.viper.SetConfigType(string(dataType))
	p.viper.SetConfigFile(path)
	return p.viper.ReadInConfig()
}

// SetFromReader specifies that discovering and loading configuration data will be performed from reader.
func (p *ViperProvider) SetFromReader(reader io.Reader, dataType DataType) error {
	p.viper.SetConfigType(string(dataType))
	return p.viper.ReadConfig(reader)
}

// IsSet checks to see if the key has been set in any of the data locations.
// IsSet is case-insensitive for a key.
func (p *ViperProvider) IsSet(key string) bool {
	return p.viper.IsSet(key)
}

// Get retrieves any value given the key to use.
func (p *ViperProvider) Get(key string) interface{} {
	return p.viper.Get(key)
}

// GetBool tries to retrieve the value associated with the key as a bool.
func (p *ViperProvider) GetBool(key string) (res bool, err error) {
	res, err = cast.ToBoolE(p.Get(key))
	err = WrapKeyErrIfNeeded(key, err)
	return
}

// GetInt tries to retrieve the value associated with the key as an integer.
func (p *ViperProvider) GetInt(key string) (res int, err error) {
	res, err = cast.ToIntE(p.Get(key))
	err = WrapKeyErrIfNeeded(key, err)
	return
}

// GetFloat64 tries to retrieve the value associated with the key as a float64.
func (p *ViperProvider) GetFloat64(key string) (res float64, err error) {
	res, err = cast.ToFloat64E(p.Get(key))
	err = WrapKeyErrIfNeeded(key, err)
	return
}

// GetString tries to retrieve the value associated with the key as a string.
func (p *ViperProvider) GetString(key string) (res string, err error) {
	res, err = cast.ToStringE(p.Get(key))
	err = WrapKeyErrIfNeeded(key, err)
	return
}

// GetStringFromSet tries to retrieve the value associated with the key as a string from the specified set.
func (p *ViperProvider) GetStringFromSet(key string, set []string, ignoreCase bool) (string, error) {
	str, err := p.GetString(key)
	if err != nil {
		return "", err
	}
	for _, s := range set {
		if (ignoreCase && strings.EqualFold(str, s)) || str == s {
			return str, nil
		}
	}
	return "", WrapKeyErr(key, fmt.Errorf("unknown value %q, should be one of %v", str, set))
}

// GetStringSlice tries to retrieve the value associated with the key as a slice of strings.
func (p *ViperProvider) GetStringSlice(key string) (res []string, err error) {
	val := p.Get(key)
	if val == nil {
		return
	}
	res, err = cast.ToStringSliceE(val)
	err = WrapKeyErrIfNeeded(key, err)
	return
}

// GetDuration tries to retrieve the value associated with the key as a duration.
func (p *ViperProvider) GetDuration(key string) (res time.Duration, err error) {
	val := p.Get(key)
	if val == nil {
		return
	}
	res, err = cast.ToDurationE(val)
	err = WrapKeyErrIfNeeded(key, err)
	return
}

// GetByteSize tries to retrieve the value associated with the key as a size in bytes.
// Both plain integers and human-readable strings (e.g. "256MB") are supported.
func (p *ViperProvider) GetByteSize(key string) (ByteSize, error) {
	val := p.Get(key)
	if val == nil {
		return 0, nil
	}
	switch v := val.(type) {
	case string:
		bs, err := parseByteSizeFromString(v)
		if err != nil {
			return 0, WrapKeyErr(key, err)
		}
		return bs, nil

	case int, int8, int16, int32, int64:
		num := cast.ToInt64(val)
		if num < 0 {
			return 0, WrapKeyErr(key, fmt.Errorf("negative value is not allowed: %d", num))
		}
		return ByteSize(num), nil

	case uint, uint8, uint16, uint32, uint64:
		return ByteSize(cast.ToUint64(val)), nil

	case ByteSize:
		return v, nil

	default:
		return 0, WrapKeyErr(key, fmt.Errorf("unsupported type for ByteSize: %T", val))
	}
}

// UnmarshalKey takes a single key and unmarshals it into a Struct.
func (p *ViperProvider) UnmarshalKey(key string, rawVal interface{}, opts ...DecoderConfigOption) error {
	options := make([]viper.DecoderConfigOption, len(opts))
	for i, opt := range opts {
		options[i] = viper.DecoderConfigOption(opt)
	}
	return WrapKeyErrIfNeeded(key, p.viper.UnmarshalKey(key, rawVal, options...))
}

// WrapKeyErr wraps error adding information about a key where this error occurs.
func (p *ViperProvider) WrapKeyErr(key string, err error) error {
	return WrapKeyErr(key, err)
}
