// Package floating couples rigid bodies to the particle state.
//
//   - [Coupler]: force and torque reduction per body, rigid integration and
//     write-back of particle positions and velocities
//   - [MaterialTable], [ContactForce]: DEM contact parameters and law
//
// Body kinematics are owned by the Coupler. A predictor call to
// [Coupler.Advance] moves the particles without committing the body state.
package floating
