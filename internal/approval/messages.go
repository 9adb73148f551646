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

package approval

import (
	"fmt"
	"strings"

	"github.com/bcem/accessbot/internal/models"
	"github.com/bcem/accessbot/internal/telegram"
)

const (
	noticeStale          = "⚠️ Заявка вже оброблена або застаріла."
	noticeRejectPrompt   = "✍️ %s відхиляє заявку.\nДайте відповідь (Reply) на це повідомлення з причиною відмови."
	noticeApproved       = "✅ СХВАЛЕНО: %s"
	noticeRejected       = "❌ ВІДХИЛЕНО: %s\nПричина: %s"
	noticeApproveFailed  = "❗️ Помилка при схваленні (%s): %v\nЗаявка залишається в очікуванні."
	noticeOwnerApproved  = "✅ Ви схвалили доступ для %s."
	noticeOwnerRejected  = "❌ Ви відхилили запит %s."
	noticeNotYourRequest = "Цей запит адресовано іншому власнику."

	msgSubmitted        = "✅ Вашу заявку надіслано адміністраторам. Очікуйте на рішення."
	msgApproved         = "🎉 Вашу заявку схвалено!\nПосилання для вступу до групи (одноразове):\n%s"
	msgApproveError     = "😔 Під час обробки вашої заявки сталася помилка. Адміністратори зв'яжуться з вами."
	msgRejected         = "❌ Вашу заявку відхилено.\nПричина: %s"
	msgReasonRecorded   = "Причину відмови надіслано заявнику."
	msgReasonStale      = "⚠️ Заявка вже оброблена, причину не надіслано."
	msgReasonNeedText   = "Причина має бути текстом. Дайте відповідь (Reply) на повідомлення із заявкою ще раз."
	msgOwnerRequest     = "🏠 Запит на доступ від співмешканця\n\n%s\n\nВкажіть, чи проживає ця людина у вашій квартирі %s."
	msgRoommateApproved = "🎉 Власник квартири підтвердив ваш запит!\nПосилання для вступу до групи (одноразове):\n%s"
	msgRoommateRejected = "❌ Власник квартири відхилив ваш запит на доступ."
)

// adminCard renders the request as shown to administrators.
func adminCard(req models.PendingRequest) string {
	r, d := req.Requester, req.Document
	var b strings.Builder
	b.WriteString("📋 Нова заявка на доступ\n\n")
	fmt.Fprintf(&b, "👤 Ім'я: %s\n", r.DisplayName())
	fmt.Fprintf(&b, "🔗 Username: %s\n", r.Handle())
	fmt.Fprintf(&b, "📞 Телефон: %s\n", displayPhone(r))
	fmt.Fprintf(&b, "🆔 Telegram ID: %d\n", r.SubjectID)
	fmt.Fprintf(&b, "🏠 Роль: %s\n", r.Role.Label())
	fmt.Fprintf(&b, "🏢 Квартира: %s\n", d.ApartmentID)
	fmt.Fprintf(&b, "📐 Площа: %s\n", d.Area)
	fmt.Fprintf(&b, "📄 Документ: %s", d.Type.Label())
	return b.String()
}

// roommateCard renders the roommate as shown to the owner.
func roommateCard(r models.Requester) string {
	return fmt.Sprintf("👤 %s\n🔗 %s\n📞 %s", r.DisplayName(), r.Handle(), displayPhone(r))
}

func displayPhone(r models.Requester) string {
	if r.PhoneNormal != "" {
		return "+" + r.PhoneNormal
	}
	return r.PhoneRaw
}

// withNotice appends a status line to a message body.
func withNotice(body, notice string) string {
	if body == "" {
		return notice
	}
	return body + "\n\n" + notice
}

// decisionKeyboard is the approve/reject pair for a subject.
func decisionKeyboard(subjectID int64, roommate bool) *telegram.InlineKeyboardMarkup {
	approve := models.ApprovalPayload{Action: models.ActionApprove, Roommate: roommate, SubjectID: subjectID}
	reject := models.ApprovalPayload{Action: models.ActionReject, Roommate: roommate, SubjectID: subjectID}
	return telegram.InlineRow(
		telegram.InlineKeyboardButton{Text: "✅ Схвалити", CallbackData: approve.String()},
		telegram.InlineKeyboardButton{Text: "❌ Відхилити", CallbackData: reject.String()},
	)
}

// actorName names the person who pressed a button or replied.
func actorName(u telegram.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	switch {
	case name != "" && u.Username != "":
		return fmt.Sprintf("%s (@%s)", name, u.Username)
	case name != "":
		return name
	case u.Username != "":
		return "@" + u.Username
	default:
		return fmt.Sprintf("id %d", u.ID)
	}
}

// inviteName labels an invite link; Telegram allows at most 32 characters.
func inviteName(apartmentID string, r models.Requester) string {
	name := []rune(fmt.Sprintf("кв. %s %s", apartmentID, r.DisplayName()))
	if len(name) > 32 {
		name = name[:32]
	}
	return string(name)
}
