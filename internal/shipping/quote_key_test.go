package shipping

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteKey_BucketsWeightInGrams(t *testing.T) {
	assert.Equal(t, "shipquote:Springfield:3000:2", quoteKey("Springfield", 3.0, 2))
	assert.Equal(t, "shipquote:Shelbyville:750:1", quoteKey("Shelbyville", 0.75, 1))
}
