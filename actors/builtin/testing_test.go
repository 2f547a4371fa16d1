package builtin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-migration/actors/builtin"
)

func TestMessageAccumulator(t *testing.T) {
	t.Run("basics", func(t *testing.T) {
		acc := &builtin.MessageAccumulator{}
		assert.True(t, acc.IsEmpty())

		acc.Add("one")
		assert.False(t, acc.IsEmpty())
		assert.Equal(t, []string{"one"}, acc.Messages())

		acc.Addf("tw%s", "o")
		acc.Addf("three")
		assert.Equal(t, []string{"one", "two", "three"}, acc.Messages())
	})

	t.Run("prefix", func(t *testing.T) {
		acc := &builtin.MessageAccumulator{}
		accA := acc.WithPrefix("A")

		accA.Add("aa")
		assert.Equal(t, []string{"Aaa"}, acc.Messages())
		assert.Equal(t, []string{"Aaa"}, accA.Messages())

		{
			accB := acc.WithPrefix("B")
			accB.Add("bb")
			assert.Equal(t, []string{"Aaa", "Bbb"}, acc.Messages())
			assert.Equal(t, []string{"Aaa", "Bbb"}, accB.Messages())
		}

		accAB := accA.WithPrefix("B")
		accAB.Add("abab")
		assert.Equal(t, []string{"Aaa", "Bbb", "ABabab"}, acc.Messages())
	})

	t.Run("merge", func(t *testing.T) {
		acc1 := &builtin.MessageAccumulator{}
		acc1.Add("a1")
		acc1.Add("a2")

		acc2 := &builtin.MessageAccumulator{}
		acc2.Add("b1")
		acc2.Add("b2")
		acc2.AddAll(acc1)

		assert.Equal(t, []string{"b1", "b2", "a1", "a2"}, acc2.Messages())
	})

	t.Run("require", func(t *testing.T) {
		acc := &builtin.MessageAccumulator{}

		acc.Require(true, "message")
		assert.True(t, acc.IsEmpty())

		acc.Require(false, "need %s", "success")
		acc.RequireNoError(nil, "ok")
		acc.RequireNoError(xerrors.New("boom"), "fail %d", 7)
		assert.Equal(t, []string{"need success", "fail 7: boom"}, acc.Messages())
		assert.Equal(t, "need success\nfail 7: boom", acc.String())
	})
}
