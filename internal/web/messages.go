package web

const (
	msgAdoptionSubmitted = "Заявка успешно подана!"
	msgApprovedFmt       = "Заявка одобрена. Животное %s теперь усыновлено."
	msgRejected          = "Заявка отклонена"
	msgStatusChanged     = "Статус заявки успешно изменён"
	msgReturned          = "Возврат успешно оформлен. Для всех деталей свяжитесь с нами по номеру "

	msgAdoptionNotFound = "Заявка не найдена"
	msgNoAccess         = "У вас нет доступа к этой заявке"
	msgReturnReason     = "Необходимо указать причину возврата"
	msgReturnNotOwner   = "Вы можете оформить возврат только для своих заявок"
	msgReturnNotAllowed = "Возврат можно оформить только для одобренной заявки"
	msgReturnDuplicate  = "Возврат для этой заявки уже был оформлен"
	msgLoginRequired    = "Необходимо войти в систему"
	msgBadForm          = "Не удалось прочитать форму"
	msgUnknownAction    = "Неизвестное действие"
	msgInternal         = "Произошла ошибка. Попробуйте позже."
)

// messages maps engine error kinds to user-facing notices.
type messages map[string]string

func (m messages) forKind(kind string) string {
	if msg, ok := m[kind]; ok {
		return msg
	}
	switch kind {
	case "not_found":
		return msgAdoptionNotFound
	case "forbidden":
		return msgNoAccess
	}
	return msgInternal
}

var (
	createMessages = messages{
		"forbidden":     "Волонтёры и администраторы не могут подавать заявки на усыновление",
		"conflict":      "У вас уже есть заявка на это животное",
		"invalid_state": "Это животное уже усыновлено",
		"not_found":     "Животное не найдено",
		"validation":    "Не выбрано животное",
	}
	approveMessages = messages{
		"invalid_state": "Одобрить можно только заявку на рассмотрении для животного в приюте",
	}
	rejectMessages = messages{
		"validation":    "Необходимо указать причину отклонения",
		"invalid_state": "Эту заявку нельзя отклонить",
	}
	statusMessages = messages{
		"validation":    "Неизвестный статус заявки",
		"invalid_state": "Недопустимое изменение статуса заявки",
	}
	statusRejectMessages = messages{
		"validation":    "При отклонении заявки необходимо указать причину",
		"invalid_state": "Недопустимое изменение статуса заявки",
	}
	returnMessages = messages{
		"validation":    msgReturnReason,
		"forbidden":     msgReturnNotOwner,
		"invalid_state": msgReturnNotAllowed,
	}
	returnDuplicateMessages = messages{
		"invalid_state": msgReturnDuplicate,
	}
)
