package face

const (
	minFaceSize = 30
	maxFaceSize = 300
)

type cascadePass struct {
	scale        float64
	minNeighbors int
}

// cascadePasses goes from the finest to the coarsest scale, loose
// neighbor counts first.
func cascadePasses() []cascadePass {
	scales := []float64{1.05, 1.1, 1.2, 1.3}
	passes := make([]cascadePass, 0, len(scales)*4)
	for _, s := range scales {
		for n := 3; n <= 6; n++ {
			passes = append(passes, cascadePass{scale: s, minNeighbors: n})
		}
	}
	return passes
}
