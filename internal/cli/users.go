package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// loadAddressList reads one hex address per non-blank, non-comment line.
func loadAddressList(path string) ([]common.Address, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var addrs []common.Address
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !common.IsHexAddress(line) {
			return nil, fmt.Errorf("not a valid address: %q", line)
		}
		addrs = append(addrs, common.HexToAddress(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return addrs, nil
}
