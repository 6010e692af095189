package usecase

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/vitos/trade_engine/internal/domain"
)

// ErrSetupNotReady signals that the setup text is still streaming in and
// should be retried next cycle rather than rejected.
var ErrSetupNotReady = errors.New("setup not yet available")

var numberRe = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

// SetupExtractor turns heterogeneous upstream output into a TradeIntent
// candidate. A structured setup with a conclusive flag wins; otherwise the
// fixed 7-line summary text is parsed positionally.
type SetupExtractor struct {
	minChars int
}

func NewSetupExtractor(minChars int) *SetupExtractor {
	return &SetupExtractor{minChars: minChars}
}

// Extract returns an unvalidated intent or ErrSetupNotReady / a parse error.
func (e *SetupExtractor) Extract(symbol string, payload domain.SetupPayload) (*domain.TradeIntent, error) {
	if s := payload.Structured; s != nil && s.Sufficient {
		side, err := parseDirection(s.Direction)
		if err != nil {
			return nil, err
		}
		return &domain.TradeIntent{
			Symbol:    symbol,
			Direction: side,
			Entry:     s.Entry,
			Stop:      s.Stop,
			TP1:       s.TP1,
			TP2:       s.TP2,
			Bias:      strings.ToLower(strings.TrimSpace(s.Bias)),
		}, nil
	}
	return e.extractFromText(symbol, payload.Text)
}

// extractFromText parses the 7-line human summary:
//
//	line 1: direction (LONG/SHORT somewhere in the line)
//	line 2: entry price
//	line 3: stop loss
//	line 4: tp1
//	line 5: tp2
//	line 6: higher-timeframe bias
//	line 7: free-form note (ignored)
func (e *SetupExtractor) extractFromText(symbol, text string) (*domain.TradeIntent, error) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < e.minChars {
		return nil, ErrSetupNotReady
	}

	lines := nonEmptyLines(trimmed)
	if len(lines) < 5 {
		return nil, ErrSetupNotReady
	}

	side, err := parseDirection(lines[0])
	if err != nil {
		return nil, err
	}

	entry, err := firstNumber(lines[1])
	if err != nil {
		return nil, fmt.Errorf("entry: %w", err)
	}
	stop, err := firstNumber(lines[2])
	if err != nil {
		return nil, fmt.Errorf("stop: %w", err)
	}
	tp1, err := firstNumber(lines[3])
	if err != nil {
		return nil, fmt.Errorf("tp1: %w", err)
	}
	tp2, err := firstNumber(lines[4])
	if err != nil {
		return nil, fmt.Errorf("tp2: %w", err)
	}

	bias := ""
	if len(lines) >= 6 {
		bias = biasWord(lines[5])
	}

	return &domain.TradeIntent{
		Symbol:    symbol,
		Direction: side,
		Entry:     entry,
		Stop:      stop,
		TP1:       tp1,
		TP2:       tp2,
		Bias:      bias,
	}, nil
}

func nonEmptyLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func parseDirection(line string) (domain.Side, error) {
	upper := strings.ToUpper(line)
	hasLong := strings.Contains(upper, "LONG") || strings.Contains(upper, "BUY")
	hasShort := strings.Contains(upper, "SHORT") || strings.Contains(upper, "SELL")
	switch {
	case hasLong && !hasShort:
		return domain.SideLong, nil
	case hasShort && !hasLong:
		return domain.SideShort, nil
	default:
		return "", fmt.Errorf("cannot determine direction from %q", line)
	}
}

// firstNumber pulls the price from a summary line. Lines arrive as numbered
// list items ("3. SL: 1.0820"), so the last number on the line is the value.
func firstNumber(line string) (float64, error) {
	matches := numberRe.FindAllString(line, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("no number in %q", line)
	}
	match := strings.ReplaceAll(matches[len(matches)-1], ",", ".")
	return strconv.ParseFloat(match, 64)
}

func biasWord(line string) string {
	lower := strings.ToLower(line)
	for _, w := range []string{"bullish", "bearish", "neutral"} {
		if strings.Contains(lower, w) {
			return w
		}
	}
	return ""
}
