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

package intake

import (
	"strings"

	"github.com/bcem/accessbot/internal/models"
	"github.com/bcem/accessbot/internal/telegram"
)

// CallbackPrefix marks inline buttons owned by the intake workflow.
const CallbackPrefix = "intake:"

const (
	fieldRole    = "role"
	fieldConfirm = "confirm"
	fieldDocType = "doctype"
)

// Answer is the reply to the confirmation question.
type Answer string

const (
	AnswerYes Answer = "yes"
	AnswerNo  Answer = "no"
)

// Label returns the button label of the answer.
func (a Answer) Label() string {
	if a == AnswerYes {
		return "✅ Так, все вірно"
	}
	return "✏️ Ні, ввести вручну"
}

// parseAnswer decodes an answer from a payload value or its exact label.
func parseAnswer(s string) (Answer, bool) {
	s = strings.TrimSpace(s)
	for _, a := range []Answer{AnswerYes, AnswerNo} {
		if s == string(a) || s == a.Label() {
			return a, true
		}
	}
	return "", false
}

// choice is a decoded button press or typed label.
type choice struct {
	field string
	value string
}

// parseCallback splits "intake:<field>:<value>".
func parseCallback(data string) (choice, bool) {
	if !strings.HasPrefix(data, CallbackPrefix) {
		return choice{}, false
	}
	parts := strings.SplitN(strings.TrimPrefix(data, CallbackPrefix), ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return choice{}, false
	}
	return choice{field: parts[0], value: parts[1]}, true
}

func button(field, value, label string) telegram.InlineKeyboardButton {
	return telegram.InlineKeyboardButton{Text: label, CallbackData: CallbackPrefix + field + ":" + value}
}

func roleKeyboard() *telegram.InlineKeyboardMarkup {
	return telegram.InlineColumn(
		button(fieldRole, string(models.RoleOwner), models.RoleOwner.Label()),
		button(fieldRole, string(models.RoleRoommate), models.RoleRoommate.Label()),
	)
}

func confirmKeyboard() *telegram.InlineKeyboardMarkup {
	return telegram.InlineRow(
		button(fieldConfirm, string(AnswerYes), AnswerYes.Label()),
		button(fieldConfirm, string(AnswerNo), AnswerNo.Label()),
	)
}

func docTypeKeyboard() *telegram.InlineKeyboardMarkup {
	buttons := make([]telegram.InlineKeyboardButton, 0, len(models.DocumentTypes))
	for _, d := range models.DocumentTypes {
		buttons = append(buttons, button(fieldDocType, string(d), d.Label()))
	}
	return telegram.InlineColumn(buttons...)
}
