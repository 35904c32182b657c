package notify

import "github.com/rickgao/vault-relay/internal/model"

// Format renders a fill as "{Side} {Coin} {Size}".
func Format(f model.FillEvent) string {
	return f.Side.Label() + " " + f.Coin + " " + f.Size
}
