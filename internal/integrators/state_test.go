package integrators

import (
	"github.com/san-kum/dynsph/internal/dynamo"
	"github.com/san-kum/dynsph/internal/particles"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Integrator state machine", func() {
	var in *Integrator

	Context("symplectic", func() {
		BeforeEach(func() {
			st := newStore(GinkgoT(), particles.MirrorSymplectic, []particles.Particle{fluid(0, dynamo.Double3{})})
			var err error
			in, err = New(st, Config{Scheme: SchemeSymplectic, Rhop0: 1000})
			Expect(err).NotTo(HaveOccurred())
		})

		It("starts in the predictor state", func() {
			Expect(in.State()).To(Equal(StatePredictor))
		})

		It("alternates predictor and corrector", func() {
			for step := 0; step < 3; step++ {
				final, err := in.Predictor(1e-3)
				Expect(err).NotTo(HaveOccurred())
				Expect(final).To(BeFalse())
				Expect(in.State()).To(Equal(StateCorrector))

				final, err = in.Corrector(1e-3)
				Expect(err).NotTo(HaveOccurred())
				Expect(final).To(BeTrue())
				Expect(in.State()).To(Equal(StatePredictor))
			}
		})

		It("rejects two predictors in a row", func() {
			_, err := in.Predictor(1e-3)
			Expect(err).NotTo(HaveOccurred())
			_, err = in.Predictor(1e-3)
			Expect(err).To(MatchError(dynamo.ErrSequence))
		})

		It("rejects a Verlet step", func() {
			_, err := in.Verlet(1e-3)
			Expect(err).To(MatchError(dynamo.ErrSequence))
		})

		It("drops a pending corrector on reset", func() {
			_, err := in.Predictor(1e-3)
			Expect(err).NotTo(HaveOccurred())
			in.Reset()
			_, err = in.Corrector(1e-3)
			Expect(err).To(MatchError(dynamo.ErrSequence))
		})
	})

	Context("verlet", func() {
		BeforeEach(func() {
			st := newStore(GinkgoT(), particles.MirrorVerlet, []particles.Particle{fluid(0, dynamo.Double3{})})
			var err error
			in, err = New(st, Config{Scheme: SchemeVerlet, VerletSteps: 3, Rhop0: 1000})
			Expect(err).NotTo(HaveOccurred())
		})

		It("loops on itself and counts steps", func() {
			for step := 1; step <= 4; step++ {
				final, err := in.Verlet(1e-3)
				Expect(err).NotTo(HaveOccurred())
				Expect(final).To(BeTrue())
				Expect(in.State()).To(Equal(StateVerlet))
				Expect(in.VerletStep()).To(Equal(step))
			}
		})

		It("rejects symplectic stages", func() {
			_, err := in.Predictor(1e-3)
			Expect(err).To(MatchError(dynamo.ErrSequence))
			_, err = in.Corrector(1e-3)
			Expect(err).To(MatchError(dynamo.ErrSequence))
		})
	})
})
