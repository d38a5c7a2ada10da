/*
Package matrix validates benchmark acceptance matrices and gates whether
performance threshold failures are fatal.

A matrix document has the shape

	approval:
	  status: approved | pending | rejected
	  approvedAt: string | null
	  approvedBy: string | null
	cases:
	  - name: optional label
	    dataset:
	      chunkShape: [x, y, z, t, c]
	      channels: c
	    acceptance:
	      atlasStepMaxMs: { atlas_t0_scale1: 50, ... }
	      scale1RequestMin: 0

Normalize turns an untyped document (as produced by encoding/json or
gopkg.in/yaml.v3) into a Config. It stops at the first violation and returns a
validation error naming the exact field, for example
cases[0].dataset.chunkShape[4] or cases[0].acceptance.atlasStepMaxMs.atlas_t0_scale1.

AssertApprovedForThresholdEnforcement separates "are the numbers well formed"
from "may a build fail because of them": enforcing thresholds requires an
approved matrix unless unapproved matrices are explicitly allowed.

Evaluate compares measured results with the declared budgets and Enforce
applies the gate to the resulting violations.
*/
package matrix
