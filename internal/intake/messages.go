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
	"fmt"

	"github.com/bcem/accessbot/internal/models"
)

const (
	msgWelcome = "👋 Вітаємо! Цей бот перевіряє право доступу до закритої групи мешканців.\n\n" +
		"Натисніть кнопку нижче, щоб поділитися своїм номером телефону."
	msgShareContact   = "📱 Поділитися контактом"
	msgNeedContact    = "Будь ласка, скористайтеся кнопкою «📱 Поділитися контактом»."
	msgForeignContact = "⚠️ Потрібен саме ваш контакт. Натисніть кнопку «📱 Поділитися контактом»."
	msgContactOK      = "Дякуємо, номер отримано."
	msgChooseRole     = "Оберіть, ким ви є у квартирі:"
	msgOwnerDocument  = "📄 Надішліть фото або файл документа, що підтверджує право власності " +
		"(договір інвестування або витяг про право власності)."
	msgNeedDocument   = "Будь ласка, надішліть фото або файл документа."
	msgProcessing     = "⏳ Обробляю документ..."
	msgAskOwner       = "Введіть номер телефону або @username власника квартири, як він зареєстрований у боті."
	msgOwnerNotFound  = "😔 Власника з такими даними не знайдено. Перевірте дані та почніть знову: /start"
	msgOwnerNoID      = "😔 Власник знайдений, але ще не зареєстрований у боті. Попросіть його пройти реєстрацію, потім /start"
	msgLedgerDown     = "😔 Реєстр тимчасово недоступний. Спробуйте пізніше: /start"
	msgOwnerAsked     = "📨 Запит надіслано власнику квартири. Очікуйте на його рішення."
	msgOwnerUnreached = "😔 Не вдалося надіслати запит власнику. Спробуйте пізніше: /start"
	msgAskApartment   = "🏢 Введіть номер квартири:"
	msgNotRecognized  = "Не вдалося автоматично розпізнати документ. Введемо дані вручну.\n\n" + msgAskApartment
	msgAskArea        = "📐 Введіть загальну площу квартири (м²):"
	msgAskDocType     = "📄 Оберіть тип документа:"
	msgNeedText       = "Будь ласка, введіть текст."
	msgUseButtons     = "Будь ласка, скористайтеся кнопками нижче."
	msgCancelled      = "Скасовано. Щоб почати знову, натисніть /start"
	msgNoConversation = "Щоб подати заявку, натисніть /start"
	msgSubmitFailed   = "😔 Не вдалося надіслати заявку адміністраторам. Спробуйте підтвердити ще раз пізніше."
	msgHelp           = "Команди:\n/start — подати заявку на доступ\n/cancel — скасувати поточну заявку\n/help — ця довідка"
)

// confirmText summarizes the document data for confirmation.
func confirmText(d models.DocumentRecord) string {
	return fmt.Sprintf("Перевірте дані:\n\n🏢 Квартира: %s\n📐 Площа: %s\n📄 Документ: %s\n\nВсе вірно?",
		d.ApartmentID, d.Area, d.Type.Label())
}
