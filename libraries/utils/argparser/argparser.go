// Copyright 2026 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package argparser is a small getopt-style command line parser used by
// the qserv-partition, qserv-worker and qserv-indexjob binaries. It
// supports long (--name) and short (-n) options, short option bundling
// (-fm value), and a trailing list-valued option that slurps every
// remaining token.
package argparser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lsst-dm/qservgo/libraries/utils/set"
)

// NO_POSITIONAL_ARGS is the value ArgParseResults carries when the
// parser that produced it declared no fixed positional argument count.
const NO_POSITIONAL_ARGS = -1

// ErrHelp is returned by Parse when -h or --help is seen.
var ErrHelp = errors.New("Help")

// UnknownArgumentParam is returned when Parse encounters an option it
// does not recognize.
type UnknownArgumentParam struct {
	Name string
}

func (u UnknownArgumentParam) Error() string {
	return fmt.Sprintf("error: unknown option `%s'", u.Name)
}

// ValidationFunc validates the string value given to an option.
type ValidationFunc func(string) error

// OptionType distinguishes a boolean flag from an option that takes a
// value.
type OptionType int

const (
	OptionalFlag OptionType = iota
	OptionalValue
)

// Option describes one supported command line option.
type Option struct {
	Name        string
	Abbrev      string
	ValDesc     string
	OptType     OptionType
	Desc        string
	Validator   ValidationFunc
	IsValueList bool
}

// ArgParser parses a command line into named options and positional
// arguments.
type ArgParser struct {
	Name      string
	Supported []*Option
	MaxArgs   int

	byNameOrAbbrev map[string]*Option
}

// NewArgParserWithVariableArgs returns a parser that places no limit on
// the number of positional arguments.
func NewArgParserWithVariableArgs(name string) *ArgParser {
	return NewArgParserWithMaxArgs(name, -1)
}

// NewArgParserWithMaxArgs returns a parser that rejects command lines
// with more than maxArgs positional arguments. A negative maxArgs means
// unlimited.
func NewArgParserWithMaxArgs(name string, maxArgs int) *ArgParser {
	return &ArgParser{
		Name:           name,
		MaxArgs:        maxArgs,
		byNameOrAbbrev: map[string]*Option{},
	}
}

// SupportOption registers opt and returns the parser for chaining.
func (ap *ArgParser) SupportOption(opt *Option) *ArgParser {
	ap.Supported = append(ap.Supported, opt)
	ap.byNameOrAbbrev[opt.Name] = opt
	if opt.Abbrev != "" {
		ap.byNameOrAbbrev[opt.Abbrev] = opt
	}
	return ap
}

// SupportsFlag registers a boolean option that takes no value.
func (ap *ArgParser) SupportsFlag(name, abbrev, desc string) *ArgParser {
	return ap.SupportOption(&Option{name, abbrev, "", OptionalFlag, desc, nil, false})
}

// SupportsString registers an option that takes an arbitrary string
// value.
func (ap *ArgParser) SupportsString(name, abbrev, valDesc, desc string) *ArgParser {
	return ap.SupportOption(&Option{name, abbrev, valDesc, OptionalValue, desc, nil, false})
}

// SupportsValidatedString registers a string option whose value is
// checked by validator before being recorded.
func (ap *ArgParser) SupportsValidatedString(name, abbrev, valDesc, desc string, validator ValidationFunc) *ArgParser {
	return ap.SupportOption(&Option{name, abbrev, valDesc, OptionalValue, desc, validator, false})
}

// SupportsInt registers an option whose value must parse as an integer.
func (ap *ArgParser) SupportsInt(name, abbrev, valDesc, desc string) *ArgParser {
	return ap.SupportsValidatedString(name, abbrev, valDesc, desc, validateIsInt)
}

// SupportsList registers an option that, once seen, consumes every
// remaining token on the command line and joins them with commas.
func (ap *ArgParser) SupportsList(name, abbrev, valDesc, desc string) *ArgParser {
	return ap.SupportOption(&Option{name, abbrev, valDesc, OptionalValue, desc, nil, true})
}

func validateIsInt(s string) error {
	if _, err := strconv.Atoi(s); err != nil {
		return fmt.Errorf("error: '%s' is not a valid integer", s)
	}
	return nil
}

func (ap *ArgParser) flagOptionNames() []string {
	var names []string
	for _, opt := range ap.Supported {
		if opt.OptType == OptionalFlag {
			names = append(names, opt.Name)
		}
	}
	return names
}

// ArgParseResults holds the outcome of a successful Parse call.
type ArgParseResults struct {
	options map[string]string
	Args    []string

	ap      *ArgParser
	posArgs int
}

// Parse interprets args against the options registered on ap.
func (ap *ArgParser) Parse(args []string) (*ArgParseResults, error) {
	options := map[string]string{}
	positional := []string{}

	queue := make([]string, len(args))
	copy(queue, args)

	for len(queue) > 0 {
		arg := queue[0]
		queue = queue[1:]

		switch {
		case arg == "-h" || arg == "--help":
			return nil, ErrHelp
		case strings.HasPrefix(arg, "--"):
			body := arg[2:]
			name, val, hasVal := splitNameValue(body)
			opt, ok := ap.byNameOrAbbrev[name]
			if !ok {
				return nil, UnknownArgumentParam{name}
			}
			if err := ap.recordOption(options, opt, opt.Name, val, hasVal, &queue); err != nil {
				return nil, err
			}
		case strings.HasPrefix(arg, "-") && len(arg) > 1:
			if err := ap.parseShortBundle(arg[1:], options, &queue); err != nil {
				return nil, err
			}
		default:
			positional = append(positional, arg)
		}
	}

	if ap.MaxArgs >= 0 && len(positional) > ap.MaxArgs {
		return nil, fmt.Errorf("error: %s has too many positional arguments. Expected at most %d, found %d: %s",
			ap.Name, ap.MaxArgs, len(positional), strings.Join(positional, ", "))
	}

	return &ArgParseResults{options, positional, ap, NO_POSITIONAL_ARGS}, nil
}

// splitNameValue splits body on the first '=' or ':', reporting whether
// a separator was found.
func splitNameValue(body string) (name, val string, hasVal bool) {
	idx := strings.IndexAny(body, "=:")
	if idx < 0 {
		return body, "", false
	}
	return body[:idx], body[idx+1:], true
}

// parseShortBundle processes the characters following a single leading
// '-', handling bundled boolean flags followed by at most one
// value-taking option.
func (ap *ArgParser) parseShortBundle(rest string, options map[string]string, queue *[]string) error {
	runes := []rune(rest)
	seen := map[string]bool{}

	for i := 0; i < len(runes); i++ {
		c := string(runes[i])
		opt, ok := ap.byNameOrAbbrev[c]
		if !ok || seen[c] {
			if i == 0 {
				return UnknownArgumentParam{c}
			}
			*queue = append([]string{string(runes[i:])}, *queue...)
			return nil
		}
		seen[c] = true

		if opt.OptType == OptionalFlag {
			if err := ap.recordOption(options, opt, c, "", false, queue); err != nil {
				return err
			}
			continue
		}

		remainder := strings.TrimPrefix(string(runes[i+1:]), " ")
		return ap.recordOption(options, opt, c, remainder, remainder != "", queue)
	}
	return nil
}

// recordOption stores the value for opt, pulling it from the queue or
// reporting an error if none is available. displayName is used in error
// messages and is either the option's full name or the short character
// that was actually typed.
func (ap *ArgParser) recordOption(options map[string]string, opt *Option, displayName, val string, hasVal bool, queue *[]string) error {
	if _, exists := options[opt.Name]; exists {
		return fmt.Errorf("error: multiple values provided for `%s'", opt.Name)
	}

	if opt.OptType == OptionalFlag {
		options[opt.Name] = ""
		return nil
	}

	if opt.IsValueList {
		var vals []string
		if hasVal {
			vals = append(vals, val)
		}
		vals = append(vals, (*queue)...)
		*queue = nil
		options[opt.Name] = strings.Join(vals, ",")
		return validateValue(opt, options[opt.Name])
	}

	if !hasVal {
		if len(*queue) == 0 {
			return fmt.Errorf("error: no value for option `%s'", displayName)
		}
		val = (*queue)[0]
		*queue = (*queue)[1:]
	}

	if err := validateValue(opt, val); err != nil {
		return err
	}
	options[opt.Name] = val
	return nil
}

func validateValue(opt *Option, val string) error {
	if opt.Validator == nil {
		return nil
	}
	return opt.Validator(val)
}

// ContainsAll returns true if every named option was supplied.
func (r *ArgParseResults) ContainsAll(names ...string) bool {
	for _, n := range names {
		if _, ok := r.options[n]; !ok {
			return false
		}
	}
	return true
}

// ContainsAny returns true if at least one named option was supplied.
func (r *ArgParseResults) ContainsAny(names ...string) bool {
	for _, n := range names {
		if _, ok := r.options[n]; ok {
			return true
		}
	}
	return false
}

// GetValue returns the string value for name, if it was supplied.
func (r *ArgParseResults) GetValue(name string) (string, bool) {
	v, ok := r.options[name]
	return v, ok
}

// GetValueOrDefault returns the string value for name, or def if it was
// not supplied.
func (r *ArgParseResults) GetValueOrDefault(name, def string) string {
	if v, ok := r.options[name]; ok {
		return v
	}
	return def
}

// MustGetValue returns the string value for name, panicking if it was
// not supplied.
func (r *ArgParseResults) MustGetValue(name string) string {
	v, ok := r.options[name]
	if !ok {
		panic(fmt.Sprintf("argparser: option `%s' was not supplied", name))
	}
	return v
}

// GetInt returns the integer value for name, if it was supplied and
// parses as an integer.
func (r *ArgParseResults) GetInt(name string) (int, bool) {
	v, ok := r.options[name]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// GetIntOrDefault returns the integer value for name, or def if it was
// not supplied or does not parse.
func (r *ArgParseResults) GetIntOrDefault(name string, def int) int {
	if n, ok := r.GetInt(name); ok {
		return n
	}
	return def
}

// AnyFlagsEqualTo returns every registered boolean flag whose presence
// matches value.
func (r *ArgParseResults) AnyFlagsEqualTo(value bool) *set.StrSet {
	return r.FlagsEqualTo(r.ap.flagOptionNames(), value)
}

// FlagsEqualTo returns the subset of names whose presence in the parsed
// results matches value.
func (r *ArgParseResults) FlagsEqualTo(names []string, value bool) *set.StrSet {
	result := set.NewStrSet(nil)
	for _, name := range names {
		_, present := r.options[name]
		if present == value {
			result.Add(name)
		}
	}
	return result
}

// NArg returns the number of positional arguments.
func (r *ArgParseResults) NArg() int {
	return len(r.Args)
}

// Arg returns the i'th positional argument.
func (r *ArgParseResults) Arg(i int) string {
	return r.Args[i]
}

// DropValue returns a copy of r with name's value removed.
func (r *ArgParseResults) DropValue(name string) *ArgParseResults {
	newOpts := make(map[string]string, len(r.options))
	for k, v := range r.options {
		if k != name {
			newOpts[k] = v
		}
	}
	return &ArgParseResults{newOpts, r.Args, r.ap, r.posArgs}
}
