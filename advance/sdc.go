package advance

import (
	"context"
	"log/slog"

	"github.com/notargets/reactamr/grid"
	"github.com/notargets/reactamr/quadrature"
	"github.com/notargets/reactamr/sources"
)

// sdcScheme is multi-implicit spectral deferred correction: every sweep
// advances the node states one sub-interval at a time, explicit in the
// transport and through the reaction stepper for the chemistry, with the
// quadrature of the previous sweep's tendencies as correction.
type sdcScheme struct {
	nodes      *quadrature.Nodes
	iterations int
}

func (sdc *sdcScheme) name() string { return "SDC" }

// sweepData holds the tendencies of every node from one sweep
type sweepData struct {
	A []*TransportResult
	R []*grid.MultiFab
}

func (sdc *sdcScheme) advance(ctx context.Context, lv *Level, st *stepState) (err error) {
	var (
		t, dt  = st.time, st.dt
		dim    = lv.Geom.Dim
		ncomp  = lv.Layout.NumState()
		nd     = sdc.nodes
		nNodes = nd.NumNodes()
		M      = nd.NumIntervals()
		U      = make([]*grid.MultiFab, nNodes)
		dtm    = make([]float64, M)
		intR   = make([]*grid.MultiFab, M)
		F      = grid.NewMultiFab(lv.BA, ncomp, 0, dim)
		prev   = sweepData{A: make([]*TransportResult, nNodes), R: make([]*grid.MultiFab, nNodes)}
		cur    sweepData
		uEnd   *grid.MultiFab
	)
	for m := 0; m < M; m++ {
		dtm[m] = dt * nd.SubInterval(m)
	}
	// Initialize: every node holds U_old, every stored tendency is A(U_old)
	if U[0], err = lv.filled(lv.Old, t); err != nil {
		return
	}
	st.srcOld = grid.NewMultiFab(lv.BA, ncomp, 0, dim)
	if err = lv.sumSources(ctx, sources.OldTime, U[0], t, dt, st.srcOld); err != nil {
		return
	}
	a0, err := lv.evaluate(ctx, U[0])
	if err != nil {
		return
	}
	r0 := grid.NewMultiFab(lv.BA, ncomp, 0, dim)
	if err = lv.rates(ctx, U[0], r0, t); err != nil {
		return
	}
	for j := 0; j < nNodes; j++ {
		if j > 0 {
			U[j] = U[0].Clone()
		}
		prev.A[j], prev.R[j] = a0, r0
	}
	for m := 0; m < M; m++ {
		intR[m] = grid.NewMultiFab(lv.BA, ncomp, 0, dim)
		intR[m].Saxpy(dtm[m], r0, 0, 0, ncomp, 0)
	}

	for k := 0; k < sdc.iterations; k++ {
		var (
			last    = k == sdc.iterations-1
			intRNew = make([]*grid.MultiFab, M)
		)
		cur = sweepData{A: make([]*TransportResult, nNodes), R: make([]*grid.MultiFab, nNodes)}
		cur.A[0], cur.R[0] = a0, r0
		uEnd = U[M].Clone()
		for m := 0; m < M; m++ {
			if m > 0 {
				if err = lv.fill(U[m], t+dt*nd.Tau[m]); err != nil {
					return
				}
				if cur.A[m], err = lv.evaluate(ctx, U[m]); err != nil {
					return
				}
			}
			sdc.correction(F, m, dt, dtm[m], cur.A[m], &prev, intR[m], st.srcOld)
			U[m+1].Copy(U[m], 0, 0, ncomp, 0)
			if err = lv.react(ctx, U[m+1], F, dtm[m], t+dt*nd.Tau[m]); err != nil {
				return
			}
			// IntR_m = U_{m+1} - U_m - dt_m F_m
			intRNew[m] = grid.NewMultiFab(lv.BA, ncomp, 0, dim)
			intRNew[m].Copy(U[m+1], 0, 0, ncomp, 0)
			intRNew[m].Saxpy(-1, U[m], 0, 0, ncomp, 0)
			intRNew[m].Saxpy(-dtm[m], F, 0, 0, ncomp, 0)
		}
		residual := U[M].DiffNormInf(uEnd)
		st.residuals = append(st.residuals, residual)
		lv.Logger.Debug("sdc iteration",
			slog.Int("iteration", k),
			slog.Float64("residual", residual))
		if last {
			break
		}
		if err = lv.fill(U[M], t+dt); err != nil {
			return
		}
		if cur.A[M], err = lv.evaluate(ctx, U[M]); err != nil {
			return
		}
		for j := 1; j < nNodes; j++ {
			cur.R[j] = grid.NewMultiFab(lv.BA, ncomp, 0, dim)
			if err = lv.rates(ctx, U[j], cur.R[j], t+dt*nd.Tau[j]); err != nil {
				return
			}
		}
		prev, intR = cur, intRNew
	}

	lv.New.Copy(U[M], 0, 0, ncomp, 0)
	// The end state holds dt_m A^K_m from the last sweep and dt w_j - dt_j of
	// the stored A^{K-1}_j it was corrected against.
	for m := 0; m < M; m++ {
		st.records = append(st.records, fluxRecord{res: cur.A[m], weight: dtm[m]})
	}
	for j := 0; j < nNodes; j++ {
		w := dt * nd.W[j]
		if j < M {
			w -= dtm[j]
		}
		st.records = append(st.records, fluxRecord{res: prev.A[j], weight: w})
	}
	return
}

// correction forms the constant tendency of sub-interval m:
// A(U_m) - A_m + (I_m[A] + I_m[R] - IntR_m)/dt_m + S
// where A_j, R_j and IntR_m come from the previous sweep.
func (sdc *sdcScheme) correction(F *grid.MultiFab, m int, dt, dtm float64,
	aNew *TransportResult, prev *sweepData, intR, src *grid.MultiFab) {
	ncomp := F.NComp
	F.SetVal(0)
	F.Saxpy(1, aNew.Tendency, 0, 0, ncomp, 0)
	F.Saxpy(-1, prev.A[m].Tendency, 0, 0, ncomp, 0)
	for j := 0; j < sdc.nodes.NumNodes(); j++ {
		c := dt * sdc.nodes.S.At(m, j) / dtm
		F.Saxpy(c, prev.A[j].Tendency, 0, 0, ncomp, 0)
		F.Saxpy(c, prev.R[j], 0, 0, ncomp, 0)
	}
	F.Saxpy(-1/dtm, intR, 0, 0, ncomp, 0)
	F.Saxpy(1, src, 0, 0, ncomp, 0)
}
