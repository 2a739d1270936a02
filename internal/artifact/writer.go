// Package artifact persists the five per-epoch artifacts named in §6:
// snapshot/weights/rewards CSVs, the Merkle JSON document, and the
// human-readable summary text. None of these formats has a pack
// dependency that covers them better than the standard library's own
// encoding/csv and encoding/json — each writer here is a handful of
// field-to-column/field-to-key mappings, not a decision with a library
// on the other side of it.
package artifact

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/paimon-protocol/erde/internal/config"
	"github.com/paimon-protocol/erde/internal/domain"
	"github.com/paimon-protocol/erde/internal/validate"
)

// Writer persists epoch artifacts under a configured output directory.
type Writer struct {
	cfg config.OutputConfig
}

func NewWriter(cfg config.OutputConfig) *Writer {
	return &Writer{cfg: cfg}
}

func (w *Writer) path(name string) string {
	return filepath.Join(w.cfg.Dir, name)
}

// WriteSnapshot writes the snapshot CSV (§6): one row per user, with a
// column per configured LP pool.
func (w *Writer) WriteSnapshot(snap domain.EpochSnapshot) error {
	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	f, err := os.Create(w.path(w.cfg.SnapshotCSV))
	if err != nil {
		return fmt.Errorf("creating snapshot csv: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	header := []string{"Address", "Debt", "Stability Pool Shares"}
	for i, pool := range snap.Pools {
		header = append(header, fmt.Sprintf("LP Pool %d (%s)", i, pool.Hex()))
	}
	header = append(header, "Timestamp")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, u := range snap.Users {
		row := []string{u.Address.Hex(), u.Debt.String(), u.SPShares.String()}
		for _, pool := range snap.Pools {
			amt := u.LPShares[pool]
			if amt == nil {
				amt = big.NewInt(0)
			}
			row = append(row, amt.String())
		}
		row = append(row, u.Timestamp.UTC().Format(time.RFC3339))
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}

// WriteWeights writes the weights CSV (§6), formatting every rational
// weight at 18 decimal places.
func (w *Writer) WriteWeights(snap domain.EpochSnapshot, weights []domain.TWADWeight) error {
	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	f, err := os.Create(w.path(w.cfg.WeightsCSV))
	if err != nil {
		return fmt.Errorf("creating weights csv: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	header := []string{"Address", "Debt Weight", "Stability Pool Weight"}
	for i, pool := range snap.Pools {
		header = append(header, fmt.Sprintf("LP Pool %d Weight (%s)", i, pool.Hex()))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, tw := range weights {
		row := []string{tw.Address.Hex(), tw.DebtWeight.FloatString(18), tw.SPWeight.FloatString(18)}
		for _, pool := range snap.Pools {
			r := tw.LPWeights[pool]
			if r == nil {
				row = append(row, "0."+zeros(18))
			} else {
				row = append(row, r.FloatString(18))
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}

// WriteRewards writes the rewards CSV (§6): per-recipient breakdown
// plus proof length.
func (w *Writer) WriteRewards(snap domain.EpochSnapshot, rewards []domain.UserReward) error {
	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	f, err := os.Create(w.path(w.cfg.RewardsCSV))
	if err != nil {
		return fmt.Errorf("creating rewards csv: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	header := []string{"Address", "Total Reward", "Debt Reward", "Stability Pool Reward"}
	for i, pool := range snap.Pools {
		header = append(header, fmt.Sprintf("LP Pool %d Reward (%s)", i, pool.Hex()))
	}
	header = append(header, "Proof Length")
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range rewards {
		row := []string{r.Address.Hex(), r.TotalReward.String(), r.DebtReward.String(), r.SPReward.String()}
		for _, pool := range snap.Pools {
			amt := r.LPRewards[pool]
			if amt == nil {
				amt = big.NewInt(0)
			}
			row = append(row, amt.String())
		}
		row = append(row, strconv.Itoa(len(r.Proof)))
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return cw.Error()
}

// merkleDocument is the canonical Merkle JSON shape (§6). Every
// big-integer field serializes as a decimal string, never a JSON
// number, to preserve precision across languages.
type merkleDocument struct {
	Epoch          uint64                `json:"epoch"`
	MerkleRoot     string                `json:"merkleRoot"`
	TotalRewards   string                `json:"totalRewards"`
	WeeklyBudget   string                `json:"weeklyBudget"`
	Timestamp      int64                 `json:"timestamp"`
	RecipientCount int                   `json:"recipientCount"`
	Recipients     []merkleDocRecipient  `json:"recipients"`
}

type merkleDocRecipient struct {
	Address             string            `json:"address"`
	TotalReward         string            `json:"totalReward"`
	DebtReward          string            `json:"debtReward"`
	LPRewards           map[string]string `json:"lpRewards"`
	StabilityPoolReward string            `json:"stabilityPoolReward"`
	Proof               []string          `json:"proof"`
}

// WriteMerkleJSON writes the canonical Merkle document (§6).
func (w *Writer) WriteMerkleJSON(dist domain.RewardDistribution, timestamp time.Time) error {
	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	doc := merkleDocument{
		Epoch:          dist.Epoch.Number,
		MerkleRoot:     "0x" + common.Bytes2Hex(dist.MerkleRoot[:]),
		TotalRewards:   dist.TotalRewards.String(),
		WeeklyBudget:   dist.WeeklyBudget.String(),
		Timestamp:      timestamp.Unix(),
		RecipientCount: len(dist.Recipients),
		Recipients:     make([]merkleDocRecipient, len(dist.Recipients)),
	}
	for i, r := range dist.Recipients {
		lp := make(map[string]string, len(r.LPRewards))
		for pool, amt := range r.LPRewards {
			lp[pool.Hex()] = amt.String()
		}
		proof := make([]string, len(r.Proof))
		for j, p := range r.Proof {
			proof[j] = "0x" + common.Bytes2Hex(p[:])
		}
		doc.Recipients[i] = merkleDocRecipient{
			Address:             r.Address.Hex(),
			TotalReward:         r.TotalReward.String(),
			DebtReward:          r.DebtReward.String(),
			LPRewards:           lp,
			StabilityPoolReward: r.SPReward.String(),
			Proof:               proof,
		}
	}

	f, err := os.Create(w.path(w.cfg.MerkleJSON))
	if err != nil {
		return fmt.Errorf("creating merkle json: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// WriteSummary writes the human-readable summary text (§6, §4.G),
// including the top-10 recipients.
func (w *Writer) WriteSummary(summary validate.Summary, result validate.Result) error {
	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	f, err := os.Create(w.path(w.cfg.SummaryText))
	if err != nil {
		return fmt.Errorf("creating summary text: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "Epoch %d reward distribution summary\n", summary.Epoch)
	fmt.Fprintf(f, "=====================================\n\n")
	fmt.Fprintf(f, "Recipients:     %d\n", summary.RecipientCount)
	fmt.Fprintf(f, "Total rewards:  %s\n", summary.TotalRewards.String())
	fmt.Fprintf(f, "Weekly budget:  %s\n", summary.WeeklyBudget.String())
	fmt.Fprintf(f, "Utilization:    %.2f%%\n\n", float64(summary.UtilizationBps)/100)

	if result.Valid {
		fmt.Fprintf(f, "Validation: PASS\n")
	} else {
		fmt.Fprintf(f, "Validation: FAIL\n")
	}
	for _, e := range result.Errors {
		fmt.Fprintf(f, "  error: %s\n", e)
	}
	for _, warn := range result.Warnings {
		fmt.Fprintf(f, "  warning: %s\n", warn)
	}

	fmt.Fprintf(f, "\nTop recipients:\n")
	top := append([]validate.RecipientSummary(nil), summary.TopRecipients...)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Amount.Cmp(top[j].Amount) > 0 })
	for i, r := range top {
		fmt.Fprintf(f, "  %2d. %s  %s\n", i+1, r.Address.Hex(), r.Amount.String())
	}

	return nil
}

func zeros(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}
