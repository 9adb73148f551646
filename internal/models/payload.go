// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseApprovalPayload decodes approval button data. It returns an error for
// anything that is not `<action>_<id>` or `<action>_roommate_<id>`.
func ParseApprovalPayload(data string) (ApprovalPayload, error) {
	parts := strings.Split(data, "_")

	var p ApprovalPayload
	var idPart string
	switch {
	case len(parts) == 2:
		idPart = parts[1]
	case len(parts) == 3 && parts[1] == "roommate":
		p.Roommate = true
		idPart = parts[2]
	default:
		return ApprovalPayload{}, fmt.Errorf("unexpected approval payload: %q", data)
	}

	switch Action(parts[0]) {
	case ActionApprove, ActionReject:
		p.Action = Action(parts[0])
	default:
		return ApprovalPayload{}, fmt.Errorf("unknown approval action: %q", parts[0])
	}

	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return ApprovalPayload{}, fmt.Errorf("parse subject id %q: %w", idPart, err)
	}
	p.SubjectID = id
	return p, nil
}
