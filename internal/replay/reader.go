package replay

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sugawarayuuta/sonnet"

	"flowSwap/internal/host"
	"flowSwap/internal/model"
)

// ReadEvents calls fn for every non-empty line of r. A line that does not
// decode is passed with a nil event and the decode error.
func ReadEvents(r io.Reader, fn func(line int, ev *model.FlowEvent, err error) error) error {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		var ev model.FlowEvent
		if err := sonnet.Unmarshal(data, &ev); err != nil {
			if cbErr := fn(line, nil, fmt.Errorf("decode flow event: %w", err)); cbErr != nil {
				return cbErr
			}
			continue
		}
		if err := fn(line, &ev, nil); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	return nil
}

// ToOp converts a decoded event into a host operation. An empty receiver
// means the pool.
func ToOp(ev model.FlowEvent, pool common.Address) (host.Op, error) {
	kind, err := model.ParseEventKind(string(ev.Kind))
	if err != nil {
		return host.Op{}, err
	}
	token, err := parseAddress("token", ev.Token)
	if err != nil {
		return host.Op{}, err
	}
	sender, err := parseAddress("sender", ev.Sender)
	if err != nil {
		return host.Op{}, err
	}
	receiver := pool
	if strings.TrimSpace(ev.Receiver) != "" {
		if receiver, err = parseAddress("receiver", ev.Receiver); err != nil {
			return host.Op{}, err
		}
	}

	op := host.Op{Kind: kind, Token: token, Sender: sender, Receiver: receiver}
	if kind != model.EventDelete {
		rate, ok := new(big.Int).SetString(strings.TrimSpace(ev.Rate), 10)
		if !ok {
			return host.Op{}, fmt.Errorf("invalid rate: %q", ev.Rate)
		}
		op.Rate = rate
	}
	return op, nil
}

func parseAddress(field, input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid %s address: %q", field, input)
	}
	return common.HexToAddress(input), nil
}
