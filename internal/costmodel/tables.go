package costmodel

// Mode cost entries, in table order.
const (
	ModeIntraNonPred = iota
	ModeIntra16x16
	ModeIntra8x8
	ModeIntra4x4
	ModeInter16x16
	ModeInter16x8
	ModeInter8x8
	ModeInter8x4
	ModeInter4x4
	ModeRefID
	ModeSkip
	ModeBidir
	NumModeCosts
)

// NumMVCosts is the number of motion-vector length buckets.
const NumMVCosts = 8

type modeWeight struct {
	bits  float64
	mask  uint8
	intra bool
}

// Approximate signalling cost in bits per mode; scaled by lambda.
var modeWeights = [NumModeCosts]modeWeight{
	ModeIntraNonPred: {1.5, Mask6F, true},
	ModeIntra16x16:   {5, Mask8F, true},
	ModeIntra8x8:     {8, Mask8F, true},
	ModeIntra4x4:     {12, Mask8F, true},
	ModeInter16x16:   {3, Mask8F, false},
	ModeInter16x8:    {5, Mask8F, false},
	ModeInter8x8:     {7, Mask6F, false},
	ModeInter8x4:     {9, Mask6F, false},
	ModeInter4x4:     {11, Mask6F, false},
	ModeRefID:        {2, Mask6F, false},
	ModeSkip:         {0.5, Mask6F, false},
	ModeBidir:        {2.5, Mask6F, false},
}

// Quarter-pel MV length buckets 0,1,2,4,8,16,32,64 and their bit cost.
var mvWeights = [NumMVCosts]float64{0, 6, 6, 9, 10, 13, 14, 16}

// DeriveModeCosts returns the quantized mode costs for lambda. Intra slices
// only carry intra entries; inter entries stay zero.
func DeriveModeCosts(sliceType SliceType, lambda float64) [NumModeCosts]uint8 {
	var out [NumModeCosts]uint8
	for i, w := range modeWeights {
		if sliceType == SliceIntra && !w.intra {
			continue
		}
		out[i] = QuantizeCost(w.bits*lambda, w.mask)
	}
	return out
}

// DeriveMotionCosts returns the quantized MV length costs for lambda.
func DeriveMotionCosts(lambda float64) [NumMVCosts]uint8 {
	var out [NumMVCosts]uint8
	for i, w := range mvWeights {
		out[i] = QuantizeCost(w*lambda, Mask6F)
	}
	return out
}

// Tables is the full cost parameter set for one (slice type, QP, transform).
type Tables struct {
	SliceType SliceType `json:"slice_type"`
	QP        int       `json:"qp"`
	Transform Transform `json:"transform"`

	LambdaMD      float64 `json:"lambda_md"`
	LambdaME      float64 `json:"lambda_me"`
	FixedLambdaMD uint32  `json:"fixed_lambda_md"`
	FixedLambdaME uint32  `json:"fixed_lambda_me"`

	ModeCosts [NumModeCosts]uint8 `json:"mode_costs"`
	MVCosts   [NumMVCosts]uint8   `json:"mv_costs"`
}

// Derive computes Tables from scratch.
func Derive(sliceType SliceType, qp int, transform Transform) Tables {
	md, me := DeriveLambda(sliceType, qp, transform)
	t := Tables{
		SliceType:     sliceType,
		QP:            qp,
		Transform:     transform,
		LambdaMD:      md,
		LambdaME:      me,
		FixedLambdaMD: FixedPointLambda(md),
		FixedLambdaME: FixedPointLambda(me),
		ModeCosts:     DeriveModeCosts(sliceType, md),
	}
	if sliceType != SliceIntra {
		t.MVCosts = DeriveMotionCosts(me)
	}
	return t
}

type cacheKey struct {
	sliceType SliceType
	qp        int
	transform Transform
}

// Cache memoizes Tables within a frame. It is not safe for concurrent use;
// planning is single threaded.
type Cache struct {
	entries map[cacheKey]Tables
	hits    int
	misses  int
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]Tables)}
}

// Get returns the cached tables, deriving them on first use.
func (c *Cache) Get(sliceType SliceType, qp int, transform Transform) Tables {
	k := cacheKey{sliceType, qp, transform}
	if t, ok := c.entries[k]; ok {
		c.hits++
		return t
	}
	c.misses++
	t := Derive(sliceType, qp, transform)
	c.entries[k] = t
	return t
}

// Reset drops all entries. Sessions reset on stream reconfiguration.
func (c *Cache) Reset() {
	clear(c.entries)
}

// Stats returns hit and miss counts since creation.
func (c *Cache) Stats() (hits, misses int) {
	return c.hits, c.misses
}
