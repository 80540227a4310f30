// Copyright (c) 2024 Alan Beebe [www.alanbeebe.com]
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// Created: September 30, 2024

// Package environment populates configuration structs from environment
// variables, optionally loaded from a .env file.
//
// Each exported field maps to a variable named by its `env` tag, or to the
// prefix followed by the field name in upper snake case. The `default` tag is
// used when the variable is unset, and `required:"true"` fields must end up
// non-empty.
package environment

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/joho/godotenv"
)

var ErrMissing = errors.New("missing environment variable")

var durationType = reflect.TypeOf(time.Duration(0))

// Load populates spec, a pointer to a struct, from the environment. Variables
// already set in the process take precedence over the ones in dotenvPath.
// An empty dotenvPath, or one that doesn't exist, loads nothing.
func Load(spec interface{}, prefix, dotenvPath string) error {

	// Ensure that the passed value is a pointer to a struct
	s, err := reflectStruct(spec)
	if err != nil {
		return fmt.Errorf("failed to reflect struct: %w", err)
	}

	// Load environment variables from the .env file if it exists
	if err := loadDotEnvFile(dotenvPath); err != nil {
		return fmt.Errorf("failed to load %s: %w", dotenvPath, err)
	}

	// Populate each field, collecting every missing variable
	var errs []error
	for _, field := range fields(s) {
		name := variableName(field, prefix)
		value, ok := os.LookupEnv(name)
		if !ok || value == "" {
			value = field.Tag.Get("default")
		}
		if value == "" {
			if field.Tag.Get("required") == "true" {
				errs = append(errs, fmt.Errorf("%w: %s", ErrMissing, name))
			}
			continue
		}
		if err := set(s.FieldByIndex(field.Index), value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Defaults returns every variable spec reads, mapped to its default value
func Defaults(spec interface{}, prefix string) (map[string]string, error) {
	s, err := reflectStruct(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to reflect struct: %w", err)
	}
	defaults := map[string]string{}
	for _, field := range fields(s) {
		defaults[variableName(field, prefix)] = field.Tag.Get("default")
	}
	return defaults, nil
}

// WriteDefaults writes a .env file to path holding every variable spec reads,
// set to its default, so it can be filled in by hand
func WriteDefaults(spec interface{}, prefix, path string) error {
	defaults, err := Defaults(spec, prefix)
	if err != nil {
		return err
	}
	exists, err := fileExists(path)
	if err != nil {
		return fmt.Errorf("failed to check if %s exists: %w", path, err)
	}
	if exists {
		return fmt.Errorf("%s already exists", path)
	}
	return godotenv.Write(defaults, path)
}

// loadDotEnvFile loads path into the process environment without overriding
// variables that are already set
func loadDotEnvFile(path string) error {
	if path == "" {
		return nil
	}
	exists, err := fileExists(path)
	if err != nil {
		return fmt.Errorf("failed to check if the file exists: %w", err)
	}
	if !exists {
		return nil
	}
	return godotenv.Load(path)
}

// fields returns the settable, non-embedded fields of s
func fields(s reflect.Value) []reflect.StructField {
	var settable []reflect.StructField
	for _, field := range reflect.VisibleFields(s.Type()) {
		if field.Anonymous || !field.IsExported() {
			continue
		}
		settable = append(settable, field)
	}
	return settable
}

// variableName returns the environment variable a field is read from
func variableName(field reflect.StructField, prefix string) string {
	if name := field.Tag.Get("env"); name != "" {
		return name
	}
	return prefix + upperSnake(field.Name)
}

// upperSnake converts a Go identifier to UPPER_SNAKE_CASE. Runs of capitals
// are kept together, so GCPProjectID becomes GCP_PROJECT_ID.
func upperSnake(name string) string {
	runes := []rune(name)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || (unicode.IsUpper(runes[i-1]) && nextLower) {
				b.WriteRune('_')
			}
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// set parses value into the field based on its type
func set(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("value '%s' is not a valid duration", value)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.Bool:
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			field.SetBool(true)
		case "false", "0", "no":
			field.SetBool(false)
		default:
			return fmt.Errorf("value '%s' is not a valid bool", value)
		}
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("value '%s' is not a valid float64", value)
		}
		field.SetFloat(f)
	case reflect.Int, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("value '%s' is not a valid int", value)
		}
		field.SetInt(i)
	case reflect.String:
		field.SetString(value)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported type '%s'", field.Type().String())
		}
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported type '%s'", field.Type().String())
	}
	return nil
}

// reflectStruct ensures spec is a non-nil pointer to a struct and returns the struct
func reflectStruct(spec interface{}) (reflect.Value, error) {
	v := reflect.ValueOf(spec)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}, errors.New("spec must be a non-nil pointer to a struct")
	}
	s := v.Elem()
	if s.Kind() != reflect.Struct {
		return reflect.Value{}, errors.New("spec must be a pointer to a struct")
	}
	return s, nil
}

// fileExists checks if the file exists and returns true if it does.
// Returns false if the file does not exist, and an error for other issues.
func fileExists(filePath string) (bool, error) {
	if _, err := os.Stat(filePath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
